package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hyperjump/yomu/internal/models"
)

// RateLimitedEmbedder spaces out calls to the wrapped embedder. Each Embed or
// EmbedBatch call consumes one token; callers block until a token is free or
// their context ends.
type RateLimitedEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows perSecond calls with the given burst.
func NewRateLimitedEmbedder(next Embedder, perSecond float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (e *RateLimitedEmbedder) wait(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", models.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// Embed waits for a token and forwards the call.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.next.Embed(ctx, text)
}

// EmbedBatch waits for a token and forwards the call.
func (e *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	return e.next.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (e *RateLimitedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close closes the wrapped embedder.
func (e *RateLimitedEmbedder) Close() error {
	return e.next.Close()
}
