package models

// UnitKind classifies a retrievable unit.
type UnitKind string

const (
	KindText  UnitKind = "text"
	KindTable UnitKind = "table"
	KindImage UnitKind = "image"
)

// Metadata keys stamped on retrievable units.
const (
	MetaSource       = "source"
	MetaPage         = "page"
	MetaContentType  = "content_type"
	MetaSections     = "sections"
	MetaMainSection  = "main_section"
	MetaHasTables    = "has_tables"
	MetaHasImages    = "has_images"
	MetaTableCount   = "table_count"
	MetaImageCount   = "image_count"
	MetaTableID      = "table_id"
	MetaTableSummary = "table_summary"
	MetaImageID      = "image_id"
	MetaImageSize    = "image_size"

	MetaChunkIndex    = "chunk_index"
	MetaChunkType     = "chunk_type"
	MetaSentenceCount = "sentence_count"
	MetaChunkSize     = "chunk_size"
)

// Chunk types recorded under MetaChunkType.
const (
	ChunkTypeSemantic = "semantic"
	ChunkTypeWindow   = "window"
)

// RetrievableUnit is the smallest indexed piece of content: a text chunk, a table, or an image description.
// Units are treated as immutable once produced; WithContent and WithMeta return copies.
type RetrievableUnit struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Kind     UnitKind               `json:"kind"`
	Source   string                 `json:"source"`
	Page     int                    `json:"page"`
	Sequence int                    `json:"sequence"`
	Metadata map[string]interface{} `json:"metadata"`
}

// WithContent returns a copy of u carrying content and a copy of its metadata.
func (u RetrievableUnit) WithContent(content string) RetrievableUnit {
	c := u
	c.Content = content
	c.Metadata = make(map[string]interface{}, len(u.Metadata)+4)
	for k, v := range u.Metadata {
		c.Metadata[k] = v
	}
	return c
}

// WithMeta returns a copy of u with the given metadata entries added.
func (u RetrievableUnit) WithMeta(kv map[string]interface{}) RetrievableUnit {
	c := u.WithContent(u.Content)
	for k, v := range kv {
		c.Metadata[k] = v
	}
	return c
}
