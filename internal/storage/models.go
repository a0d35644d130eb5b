package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create/restore collides with an existing id.
var ErrConflict = errors.New("already exists")

// ErrValidation is returned when required fields are missing on create.
var ErrValidation = errors.New("invalid record")

// Document is an uploaded PDF. Immutable after creation except Title.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	Filename   string    `json:"filename"`
	Filepath   string    `json:"filepath"`
	PageCount  int       `json:"pageCount"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Highlight is a persisted marked passage. Anchor is the opaque serialized
// geometry produced by the anchor package. Conversation is nil until the
// highlight's first chat turn.
type Highlight struct {
	ID           string        `json:"id"`
	DocumentID   string        `json:"documentId"`
	PageNumber   int           `json:"pageNumber"`
	SelectedText string        `json:"selectedText"`
	Anchor       string        `json:"anchor"`
	CreatedAt    time.Time     `json:"createdAt"`
	Conversation *Conversation `json:"conversation"`
}

// HighlightDraft is the shape of a highlight before it exists in the store.
type HighlightDraft struct {
	DocumentID   string `json:"documentId"`
	PageNumber   int    `json:"pageNumber"`
	Anchor       string `json:"anchor"`
	SelectedText string `json:"selectedText"`
}

// Conversation holds the ordered message history for exactly one highlight.
type Conversation struct {
	ID          string    `json:"id"`
	HighlightID string    `json:"highlightId"`
	CreatedAt   time.Time `json:"createdAt"`
	Messages    []Message `json:"messages"`
}

// Message is one turn entry, role "user" or "assistant".
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Snapshot is the full pre-deletion state of a highlight, sufficient to
// restore it with identical ids and timestamps.
type Snapshot struct {
	Highlight Highlight `json:"highlight"`
}

// Job is a background work item in the SQLite-backed queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
