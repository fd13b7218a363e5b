package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
)

// Providers accepted in embedding.provider.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// NewFromConfig builds the configured embedder and wraps it with the rate
// limiter and cache when those are enabled.
func NewFromConfig(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch cfg.Provider {
	case ProviderOpenAI, "":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.APIKeyEnv)
		}
		reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
		}
		e, err := NewOpenAIEmbedder(cfg.Model, cfg.Dimensions, reqOpts, WithOpenAILogger(logger))
		if err != nil {
			return nil, err
		}
		base = e
	case ProviderONNX:
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		base = e
	case ProviderMock:
		base = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		base = NewRateLimitedEmbedder(base, cfg.RequestsPerSecond, cfg.Burst)
	}
	if cfg.CacheSize > 0 {
		base = NewCachedEmbedder(base, cfg.CacheSize)
	}
	if logger != nil {
		logger.Info("embedder ready",
			zap.String("provider", cfg.Provider),
			zap.String("model", cfg.Model),
			zap.Int("dimensions", base.Dimensions()))
	}
	return base, nil
}
