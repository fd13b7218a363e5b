// Package segment re-splits text units into sentence-coherent chunks using
// sentence embedding similarity, falling back to fixed windows when embeddings
// are unavailable.
package segment

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

// sentenceEnd matches a sentence terminator and the whitespace after it.
var sentenceEnd = regexp.MustCompile(`[.!?]\s+|[。！？]\s*`)

// Chunk is one segment of a text unit.
type Chunk struct {
	Content       string
	SentenceCount int
}

// Segmenter splits text units. A nil embedder always takes the window fallback.
type Segmenter struct {
	embedder  embedding.Embedder
	minSize   int
	maxSize   int
	threshold float64
	size      int
	overlap   int
	logger    *zap.Logger
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithBounds sets the semantic chunk size bounds in characters.
func WithBounds(minSize, maxSize int) Option {
	return func(s *Segmenter) { s.minSize, s.maxSize = minSize, maxSize }
}

// WithThreshold sets the similarity at or above which adjacent sentences share a chunk.
func WithThreshold(t float64) Option {
	return func(s *Segmenter) { s.threshold = t }
}

// WithWindow sets the fallback window size and overlap in characters.
func WithWindow(size, overlap int) Option {
	return func(s *Segmenter) { s.size, s.overlap = size, overlap }
}

// WithLogger sets a logger for fallback events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Segmenter) { s.logger = l }
}

// New returns a segmenter using embedder for sentence vectors.
func New(embedder embedding.Embedder, opts ...Option) *Segmenter {
	s := &Segmenter{
		embedder:  embedder,
		minSize:   100,
		maxSize:   1500,
		threshold: 0.7,
		size:      1000,
		overlap:   200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SplitSentences splits text after '.', '!' or '?' followed by whitespace and
// after full-width terminators. Terminators stay with their sentence; empty
// pieces are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		_, w := utf8.DecodeRuneInString(text[m[0]:])
		if s := strings.TrimSpace(text[prev : m[0]+w]); s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Split segments text. The boolean reports whether the window fallback was used.
func (s *Segmenter) Split(ctx context.Context, text string) ([]Chunk, bool) {
	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return []Chunk{{Content: text, SentenceCount: len(sentences)}}, false
	}

	vecs, err := s.embed(ctx, sentences)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("semantic segmentation unavailable, using fixed windows",
				zap.Int("sentences", len(sentences)), zap.Error(err))
		}
		windows := Windows(text, s.size, s.overlap)
		chunks := make([]Chunk, len(windows))
		for i, w := range windows {
			chunks[i] = Chunk{Content: w}
		}
		return chunks, true
	}
	return s.merge(sentences, vecs), false
}

func (s *Segmenter) embed(ctx context.Context, sentences []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, models.ErrEmbeddingUnavailable
	}
	vecs, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(sentences) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", models.ErrEmbeddingUnavailable, len(sentences), len(vecs))
	}
	return vecs, nil
}

// merge greedily grows chunks while adjacent sentences stay similar and the
// summed sentence length stays within maxSize. Chunks shorter than minSize are
// dropped; if none survive, all sentences form one chunk.
func (s *Segmenter) merge(sentences []string, vecs [][]float32) []Chunk {
	var chunks []Chunk
	cur := []string{sentences[0]}
	curLen := utils.RuneLen(sentences[0])

	closeChunk := func() {
		if curLen >= s.minSize {
			chunks = append(chunks, Chunk{Content: strings.Join(cur, " "), SentenceCount: len(cur)})
		}
	}

	for i := 1; i < len(sentences); i++ {
		n := utils.RuneLen(sentences[i])
		if curLen+n > s.maxSize {
			closeChunk()
			cur, curLen = []string{sentences[i]}, n
			continue
		}
		if utils.CosineSimilarity(vecs[i-1], vecs[i]) >= s.threshold {
			cur = append(cur, sentences[i])
			curLen += n
			continue
		}
		closeChunk()
		cur, curLen = []string{sentences[i]}, n
	}
	closeChunk()

	if len(chunks) == 0 {
		return []Chunk{{Content: strings.Join(sentences, " "), SentenceCount: len(sentences)}}
	}
	return chunks
}

// Segment splits a text unit into chunk units stamped with chunk_index,
// chunk_type, sentence_count and chunk_size. Other kinds pass through unchanged.
func (s *Segmenter) Segment(ctx context.Context, u models.RetrievableUnit) []models.RetrievableUnit {
	if u.Kind != models.KindText {
		return []models.RetrievableUnit{u}
	}
	chunks, fallback := s.Split(ctx, u.Content)
	chunkType := models.ChunkTypeSemantic
	if fallback {
		chunkType = models.ChunkTypeWindow
	}
	out := make([]models.RetrievableUnit, 0, len(chunks))
	for i, c := range chunks {
		meta := map[string]interface{}{
			models.MetaChunkIndex: i,
			models.MetaChunkType:  chunkType,
			models.MetaChunkSize:  utils.RuneLen(c.Content),
		}
		if !fallback {
			meta[models.MetaSentenceCount] = c.SentenceCount
		}
		out = append(out, u.WithContent(c.Content).WithMeta(meta))
	}
	return out
}

// SegmentAll segments every text unit in units, preserving order.
func (s *Segmenter) SegmentAll(ctx context.Context, units []models.RetrievableUnit) []models.RetrievableUnit {
	out := make([]models.RetrievableUnit, 0, len(units))
	for _, u := range units {
		out = append(out, s.Segment(ctx, u)...)
	}
	return out
}
