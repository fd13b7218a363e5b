// Package chat answers questions about an indexed document and keeps per-session history.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

// Retriever returns ranked hits for a question. *collection.Registry implements it.
type Retriever interface {
	Query(ctx context.Context, identity, text string, k int) (*models.QueryResult, error)
}

// Service is the question answering loop: history, retrieval, generation, persistence.
type Service struct {
	retriever Retriever
	generator Generator
	history   storage.Storage // nil disables history
	topK      int
	turns     int
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHistory persists turns and replays the last n messages into the prompt.
func WithHistory(s storage.Storage, n int) Option {
	return func(svc *Service) {
		svc.history = s
		svc.turns = n
	}
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(svc *Service) {
		if k > 0 {
			svc.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService creates a chat service.
func NewService(retriever Retriever, generator Generator, opts ...Option) *Service {
	svc := &Service{
		retriever: retriever,
		generator: generator,
		topK:      3,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ask answers question against documentID, or the first indexed document when it is empty.
// An empty sessionID starts a new session; the returned data carries the session id to reuse.
// A missing document yields an error wrapping models.ErrNotFound.
func (s *Service) Ask(ctx context.Context, question, sessionID, documentID string) (*models.ChatData, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.ErrEmptyQuestion
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	prompt := question
	if s.history != nil {
		if err := s.history.CreateSession(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("open session: %w", err)
		}
		prev, err := s.history.RecentMessages(ctx, sessionID, s.turns)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		prompt = WithConversation(prev, question)
	}

	res, err := s.retriever.Query(ctx, documentID, question, s.topK)
	if err != nil {
		return nil, err
	}
	answer, err := s.generator.Generate(ctx, prompt, res.Hits)
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		for _, m := range []*models.Message{
			{SessionID: sessionID, Role: models.RoleUser, Content: question},
			{SessionID: sessionID, Role: models.RoleAssistant, Content: answer},
		} {
			if err := s.history.AppendMessage(ctx, m); err != nil {
				s.logger.Warn("failed to store message", zap.String("session", sessionID), zap.Error(err))
			}
		}
	}
	s.logger.Info("question answered",
		zap.String("session", sessionID),
		zap.String("collection", res.Collection),
		zap.Int("passages", len(res.Hits)),
		zap.Bool("degraded", res.Degraded),
	)
	return &models.ChatData{
		Answer:    answer,
		Sources:   Sources(res.Hits),
		Query:     question,
		SessionID: sessionID,
	}, nil
}

// WithConversation prefixes question with prior turns. With no history the question is returned as is.
func WithConversation(history []*models.Message, question string) string {
	if len(history) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, m := range history {
		role := "User"
		if m.Role == models.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	b.WriteString("\nCurrent question: ")
	b.WriteString(question)
	return b.String()
}

// Sources lists the distinct (page, source) pairs of hits in rank order.
func Sources(hits []models.Hit) []models.SourceInfo {
	out := make([]models.SourceInfo, 0, len(hits))
	seen := make(map[models.SourceInfo]bool, len(hits))
	for _, h := range hits {
		si := models.SourceInfo{Page: strconv.Itoa(h.Page), Source: h.Source}
		if h.Source == "" {
			si.Source = "Unknown"
		}
		if seen[si] {
			continue
		}
		seen[si] = true
		out = append(out, si)
	}
	return out
}
