// Package keyword provides lexical (BM25-style) indexing and search over retrievable units.
package keyword

import (
	"context"

	"github.com/hyperjump/yomu/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title (main section) field.
	// Values > 1 make section-heading matches rank higher. Use 1.0 for no boost.
	TitleBoost float64
	// PhraseBoost multiplies the score when query terms appear close together (phrase match).
	// Values > 1 boost units with adjacent query terms (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	IndexUnits(ctx context.Context, units []models.RetrievableUnit) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Close() error
}

// KeywordResult is a single keyword search hit (ID is the unit ID).
type KeywordResult struct {
	ID    string
	Score float64
}
