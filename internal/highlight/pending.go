package highlight

import (
	"context"
	"errors"

	"github.com/marginapp/margin/internal/anchor"
	"github.com/marginapp/margin/internal/storage"
)

// ErrNoPending is returned by Promote when no candidate is held.
var ErrNoPending = errors.New("no pending highlight")

// Candidate is a highlight-shaped value that does not exist in the store yet.
type Candidate struct {
	DocumentID   string
	PageNumber   int
	Anchor       anchor.Anchor
	SelectedText string
}

// Store is the persistence façade the client core relies on. *storage.Store
// satisfies it directly; the CLI provides an HTTP-backed implementation.
type Store interface {
	ListHighlightsByDocument(ctx context.Context, documentID string) ([]storage.Highlight, error)
	CreateHighlight(ctx context.Context, draft storage.HighlightDraft) (storage.Highlight, error)
	DeleteHighlight(ctx context.Context, id string) (storage.Snapshot, error)
	RestoreHighlight(ctx context.Context, snap storage.Snapshot) (storage.Highlight, error)
}

// Manager holds at most one pending candidate. A highlight only becomes
// durable once it has conversational intent behind it: the candidate is
// persisted exactly once, on the first outgoing chat message.
type Manager struct {
	current *Candidate
}

// Set replaces the held candidate. A previous candidate is discarded
// silently; it never had a persistence side effect, so this is lossless.
func (m *Manager) Set(c Candidate) {
	m.current = &c
}

// Current returns the held candidate, if any.
func (m *Manager) Current() (Candidate, bool) {
	if m.current == nil {
		return Candidate{}, false
	}
	return *m.current, true
}

// Clear discards the held candidate without any store effect (explicit
// abandonment, e.g. the chat panel closed without a message).
func (m *Manager) Clear() {
	m.current = nil
}

// Promote persists the held candidate and clears it. On store failure the
// candidate is preserved so the caller can retry; the chat turn must not
// proceed in that case.
func (m *Manager) Promote(ctx context.Context, store Store) (storage.Highlight, error) {
	if m.current == nil {
		return storage.Highlight{}, ErrNoPending
	}

	h, err := store.CreateHighlight(ctx, storage.HighlightDraft{
		DocumentID:   m.current.DocumentID,
		PageNumber:   m.current.PageNumber,
		Anchor:       m.current.Anchor.Encode(),
		SelectedText: m.current.SelectedText,
	})
	if err != nil {
		return storage.Highlight{}, err
	}

	m.current = nil
	return h, nil
}
