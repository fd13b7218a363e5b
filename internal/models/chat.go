package models

import "time"

// Chat roles stored with each message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one stored turn of a chat session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

// SourceInfo names the page and document a passage came from.
type SourceInfo struct {
	Page   string `json:"page"`
	Source string `json:"source"`
}

// ChatData is the payload of a successful chat answer.
type ChatData struct {
	Answer    string       `json:"answer"`
	Sources   []SourceInfo `json:"sources"`
	Query     string       `json:"query"`
	SessionID string       `json:"session_id"`
}

// ChatResponse wraps a chat answer or failure.
type ChatResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *ChatData `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// UploadResponse is returned by POST /upload-pdf.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"`
	Identity string `json:"document_identity"`
}
