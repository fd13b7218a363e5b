package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
)

// maxInputsPerRequest is the API's limit on inputs in one embeddings call.
const maxInputsPerRequest = 2048

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

// OpenAIOption configures an OpenAIEmbedder.
type OpenAIOption func(*OpenAIEmbedder)

// WithOpenAILogger sets the logger.
func WithOpenAILogger(l *zap.Logger) OpenAIOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder returns an embedder for model producing vectors of the given dimensions.
// requestOpts are passed to the client, e.g. option.WithAPIKey or option.WithBaseURL.
func NewOpenAIEmbedder(model string, dimensions int, requestOpts []option.RequestOption, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}
	e := &OpenAIEmbedder{
		client:     openai.NewClient(requestOpts...),
		model:      model,
		dimensions: dimensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in as few requests as the API allows.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxInputsPerRequest {
		end := start + maxInputsPerRequest
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:      e.model,
		Dimensions: openai.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, errCountMismatch(len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		vecs[i] = v
	}
	if e.logger != nil {
		e.logger.Debug("embedded batch", zap.Int("inputs", len(texts)), zap.Int64("tokens", resp.Usage.TotalTokens))
	}
	return vecs, nil
}

// Dimensions returns the configured output dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
