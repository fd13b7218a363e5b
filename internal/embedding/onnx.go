//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

// ONNX graph names of a sentence-transformers export.
var (
	onnxInputs  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputs = []string{"last_hidden_state"}
)

// ONNXEmbedder runs a local sentence-embedding model with ONNX Runtime so
// documents can be ingested without an API key. The sentence vector is the
// attention-masked mean of the token states. Requires CGO and the onnxruntime
// shared library.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	hidden        *ort.Tensor[float32] // [1, maxTokens, dimensions]
}

// NewONNXEmbedder loads the model at modelPath. dimensions is the hidden size of the model.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx embedder: model_path is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder: dimensions must be positive")
	}
	if maxTokens <= 2 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{dimensions: dimensions, maxTokens: maxTokens, tokenizer: &SimpleTokenizer{}}
	ids, mask, types := e.tokenizer.Tokenize("", maxTokens)
	seq := ort.NewShape(1, int64(maxTokens))
	var err error
	if e.inputIDs, err = ort.NewTensor(seq, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewTensor(seq, mask); err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDs, err = ort.NewTensor(seq, types); err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(maxTokens), int64(dimensions))); err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputs, onnxOutputs,
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return e, nil
}

// Embed runs one inference and returns the L2-normalized pooled vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("%w: onnx embedder is closed", models.ErrEmbeddingUnavailable)
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %v", models.ErrEmbeddingUnavailable, err)
	}

	vec := meanPool(e.hidden.GetData(), mask, e.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds texts one inference at a time.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors. It is safe to call more than once.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	e.destroy()
	return err
}

func (e *ONNXEmbedder) destroy() {
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		e.inputIDs = nil
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
		e.attentionMask = nil
	}
	if e.tokenTypeIDs != nil {
		_ = e.tokenTypeIDs.Destroy()
		e.tokenTypeIDs = nil
	}
	if e.hidden != nil {
		_ = e.hidden.Destroy()
		e.hidden = nil
	}
}
