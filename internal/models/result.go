package models

// Ingestion outcomes.
const (
	StatusSuccess       = "success"
	StatusAlreadyExists = "already_exists"
	StatusFailed        = "failed"
)

// IngestResult is the outcome of ingesting one document.
type IngestResult struct {
	Status    string `json:"status"`
	Identity  string `json:"document_identity"`
	Filename  string `json:"filename"`
	ByteSize  int64  `json:"byte_size"`
	UnitCount int    `json:"unit_count"`
}

// Hit is a single ranked unit returned by a query.
type Hit struct {
	Content  string   `json:"content"`
	Snippet  string   `json:"snippet,omitempty"`
	Page     int      `json:"page"`
	Source   string   `json:"source"`
	Kind     UnitKind `json:"kind"`
	Score    float64  `json:"score"`
	UnitID   string   `json:"unit_id"`
	Sequence int      `json:"sequence"`
}

// QueryResult is the ordered response to a query together with the original question.
type QueryResult struct {
	Query      string `json:"query"`
	Collection string `json:"collection"`
	Hits       []Hit  `json:"hits"`
	// Degraded is set when only one of the two retrievers could serve the query.
	Degraded  bool  `json:"degraded,omitempty"`
	QueryTime int64 `json:"query_time_ms"`
}
