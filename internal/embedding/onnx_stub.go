//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/yomu/internal/models"
)

var errONNXUnavailable = errors.New("ONNX embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, errONNXUnavailable
}

// Embed always fails without CGO.
func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, models.ErrEmbeddingUnavailable
}

// EmbedBatch always fails without CGO.
func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, models.ErrEmbeddingUnavailable
}

// Dimensions returns 0.
func (e *ONNXEmbedder) Dimensions() int { return 0 }

// Close is a no-op.
func (e *ONNXEmbedder) Close() error { return nil }
