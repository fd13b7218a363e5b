package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
)

const systemPrompt = `Answer the question using only the passages below. Each passage is tagged with its page.
If the passages do not contain the answer, say that you don't know. Do not make up an answer.`

// Generator produces an answer to prompt grounded on passages.
type Generator interface {
	Generate(ctx context.Context, prompt string, passages []models.Hit) (string, error)
}

// OpenAIGenerator answers with the OpenAI chat completions endpoint.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

// GeneratorOption configures an OpenAIGenerator.
type GeneratorOption func(*OpenAIGenerator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(l *zap.Logger) GeneratorOption {
	return func(g *OpenAIGenerator) { g.logger = l }
}

// NewOpenAIGenerator returns a generator for model. requestOpts are passed to the client.
func NewOpenAIGenerator(model string, temperature float64, requestOpts []option.RequestOption, opts ...GeneratorOption) (*OpenAIGenerator, error) {
	if model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	g := &OpenAIGenerator{
		client:      openai.NewClient(requestOpts...),
		model:       model,
		temperature: temperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate sends the passages as context and returns the first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, passages []models.Hit) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       g.model,
		Temperature: openai.Float(g.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(FormatContext(passages) + "\n\nQuestion: " + prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", models.ErrGeneration)
	}
	if g.logger != nil {
		g.logger.Debug("generated answer",
			zap.String("model", resp.Model),
			zap.Int64("tokens", resp.Usage.TotalTokens),
		)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// FormatContext renders passages as page-tagged blocks separated by blank lines.
func FormatContext(passages []models.Hit) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[page %d] %s", p.Page, p.Content)
	}
	return b.String()
}
