// Package storage provides SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomu/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		key TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		unit_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertDocument inserts or replaces the ledger row for rec.Key. CreatedAt is set when zero.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, rec *models.DocumentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (key, filename, byte_size, unit_count, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   filename = excluded.filename,
		   byte_size = excluded.byte_size,
		   unit_count = excluded.unit_count,
		   status = excluded.status`,
		rec.Key, rec.Filename, rec.ByteSize, rec.UnitCount, rec.Status, rec.CreatedAt,
	)
	return err
}

// GetDocument returns the ledger row for key.
func (s *SQLiteStorage) GetDocument(ctx context.Context, key string) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT key, filename, byte_size, unit_count, status, created_at
		 FROM documents WHERE key = ?`, key,
	).Scan(&rec.Key, &rec.Filename, &rec.ByteSize, &rec.UnitCount, &rec.Status, &rec.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDocuments returns ledger rows, newest first, with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, filename, byte_size, unit_count, status, created_at
		 FROM documents ORDER BY created_at DESC, key LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.DocumentRecord
	for rows.Next() {
		var rec models.DocumentRecord
		if err := rows.Scan(&rec.Key, &rec.Filename, &rec.ByteSize, &rec.UnitCount, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// CountDocuments returns the number of ledger rows.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CreateSession registers a chat session. Creating an existing session is a no-op.
func (s *SQLiteStorage) CreateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`, id, time.Now(),
	)
	return err
}

// SessionExists reports whether a chat session is registered.
func (s *SQLiteStorage) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// AppendMessage stores a chat turn and sets its ID and CreatedAt.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, msg *models.Message) error {
	msg.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	return err
}

// RecentMessages returns the last n messages of a session, oldest first.
func (s *SQLiteStorage) RecentMessages(ctx context.Context, sessionID string, n int) ([]*models.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM (
		   SELECT id, session_id, role, content, created_at
		   FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
