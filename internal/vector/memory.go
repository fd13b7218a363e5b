// Package vector provides cosine top-k vector search over retrievable units.
package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/yomu/pkg/utils"
)

// VectorResult is a single vector search hit (ID is the unit ID).
type VectorResult struct {
	ID    string
	Score float64 // Cosine similarity; vectors are normalized on insert
}

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Vectors are L2-normalized on insert so the inner product equals cosine similarity.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Dimensions returns the vector width.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends normalized copies of vectors with the given IDs.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		utils.NormalizeL2(vec)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k vectors by cosine similarity. Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	q := make([]float32, len(query))
	copy(q, query)
	utils.NormalizeL2(q)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = scored{id: m.ids[i], score: utils.DotProduct(q, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		result[i] = &VectorResult{ID: scores[i].id, Score: scores[i].score}
	}
	return result, nil
}
