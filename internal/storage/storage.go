// Package storage defines the persistence interface for the document ledger and chat history.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/yomu/internal/models"
)

// ErrNotFound is returned when a ledger row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document ledger and chat history persistence.
type Storage interface {
	// Document ledger
	UpsertDocument(ctx context.Context, rec *models.DocumentRecord) error
	GetDocument(ctx context.Context, key string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error)
	CountDocuments(ctx context.Context) (int64, error)

	// Chat history
	CreateSession(ctx context.Context, id string) error
	SessionExists(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	// RecentMessages returns the last n messages of a session, oldest first.
	RecentMessages(ctx context.Context, sessionID string, n int) ([]*models.Message, error)

	Close() error
}
