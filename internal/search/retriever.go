package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/yomu/internal/embedding"
	"github.com/hyperjump/yomu/internal/keyword"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSemanticWeight is the share of the fused score given to the semantic ranking.
const DefaultSemanticWeight = 0.7

// SemanticSearcher returns units nearest to a query vector.
type SemanticSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vector.ScoredUnit, error)
}

// FusedRetriever queries a semantic and a lexical index for the same top-k and
// merges the two rankings with weighted reciprocal rank fusion.
type FusedRetriever struct {
	semantic SemanticSearcher
	lexical  keyword.KeywordIndex
	embedder embedding.Embedder
	units    map[string]models.RetrievableUnit
	weight   float64
	opts     *keyword.SearchOptions
	logger   *zap.Logger
}

// Option configures a FusedRetriever.
type Option func(*FusedRetriever)

// WithSemanticWeight sets w; the lexical side gets 1-w.
func WithSemanticWeight(w float64) Option {
	return func(r *FusedRetriever) {
		if w >= 0 && w <= 1 {
			r.weight = w
		}
	}
}

// WithSearchOptions sets the lexical search options (fuzziness, boosts).
func WithSearchOptions(opts *keyword.SearchOptions) Option {
	return func(r *FusedRetriever) { r.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *FusedRetriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewFusedRetriever creates a retriever over one collection. units resolves lexical hits
// back to their content. A nil lexical index makes the retriever semantic-only.
func NewFusedRetriever(semantic SemanticSearcher, lexical keyword.KeywordIndex, embedder embedding.Embedder, units []models.RetrievableUnit, opts ...Option) *FusedRetriever {
	r := &FusedRetriever{
		semantic: semantic,
		lexical:  lexical,
		embedder: embedder,
		units:    make(map[string]models.RetrievableUnit, len(units)),
		weight:   DefaultSemanticWeight,
		logger:   zap.NewNop(),
	}
	for _, u := range units {
		r.units[u.ID] = u
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hybrid reports whether both retrievers are attached.
func (r *FusedRetriever) Hybrid() bool {
	return r.lexical != nil
}

// Retrieve returns up to k hits for query. When the semantic side fails but lexical
// results are available, the lexical ranking alone is returned and degraded is true.
func (r *FusedRetriever) Retrieve(ctx context.Context, query string, k int) (hits []models.Hit, degraded bool, err error) {
	if k <= 0 {
		return nil, false, nil
	}
	var (
		semHits []vector.ScoredUnit
		semErr  error
		lexHits []*keyword.KeywordResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semHits, semErr = r.searchSemantic(gctx, query, k)
		return nil
	})
	if r.lexical != nil {
		g.Go(func() error {
			res, err := r.lexical.Search(gctx, query, k, r.opts)
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			lexHits = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	if semErr != nil {
		if r.lexical == nil {
			return nil, false, semErr
		}
		r.logger.Warn("semantic retrieval failed, serving lexical results", zap.Error(semErr))
		degraded = true
		semHits = nil
	}
	if r.lexical == nil {
		degraded = true
	}

	semUnits := make(map[string]models.RetrievableUnit, len(semHits))
	semantic := Ranking{Weight: r.weight}
	for _, h := range semHits {
		semantic.IDs = append(semantic.IDs, h.Unit.ID)
		semantic.Scores = append(semantic.Scores, h.Score)
		semUnits[h.Unit.ID] = h.Unit
	}
	lexical := Ranking{Weight: 1 - r.weight}
	for _, h := range lexHits {
		lexical.IDs = append(lexical.IDs, h.ID)
		lexical.Scores = append(lexical.Scores, h.Score)
	}

	fused := Fuse(semantic, lexical)
	if len(fused) > k {
		fused = fused[:k]
	}
	hits = make([]models.Hit, 0, len(fused))
	for _, f := range fused {
		u, ok := semUnits[f.ID]
		if !ok {
			u, ok = r.units[f.ID]
		}
		if !ok {
			r.logger.Debug("dropping hit for unknown unit", zap.String("id", f.ID))
			continue
		}
		hits = append(hits, models.Hit{
			Content:  u.Content,
			Snippet:  Highlight(u.Content, query, DefaultSnippetLength),
			Page:     u.Page,
			Source:   u.Source,
			Kind:     u.Kind,
			Score:    f.Score,
			UnitID:   u.ID,
			Sequence: u.Sequence,
		})
	}
	return hits, degraded, nil
}

func (r *FusedRetriever) searchSemantic(ctx context.Context, query string, k int) ([]vector.ScoredUnit, error) {
	if r.semantic == nil || r.embedder == nil {
		return nil, models.ErrEmbeddingUnavailable
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	res, err := r.semantic.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return res, nil
}
