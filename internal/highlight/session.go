package highlight

import (
	"context"
	"errors"
	"fmt"

	"github.com/marginapp/margin/internal/anchor"
	"github.com/marginapp/margin/internal/chat"
	"github.com/marginapp/margin/internal/storage"
)

// ErrEmptySelection is returned when a selection normalizes to zero area.
var ErrEmptySelection = errors.New("empty selection")

// ErrNoTombstone is returned by Undo when there is nothing to restore.
var ErrNoTombstone = errors.New("nothing to undo")

// Session is the aggregate for one open document: the in-memory highlight
// list, the at-most-one pending candidate, and the single undo tombstone.
// The highlight list is only ever replaced wholesale, never patched, so a
// refresh racing a new selection cannot leave a partially updated view.
type Session struct {
	store      Store
	documentID string
	highlights []storage.Highlight
	pending    Manager
	tombstone  *storage.Snapshot
}

// NewSession creates a session for the given document. Call Refresh before
// the first Select.
func NewSession(store Store, documentID string) *Session {
	return &Session{store: store, documentID: documentID}
}

// Refresh refetches the document's whole highlight state from the store.
func (s *Session) Refresh(ctx context.Context) error {
	list, err := s.store.ListHighlightsByDocument(ctx, s.documentID)
	if err != nil {
		return fmt.Errorf("listing highlights: %w", err)
	}
	s.highlights = list
	return nil
}

// Highlights returns the current in-memory highlight list.
func (s *Session) Highlights() []storage.Highlight {
	return s.highlights
}

// Select resolves a confirmed text selection against the known highlights.
// A match returns a ref to the existing highlight (and its conversation
// history comes with the list). No match installs a new pending candidate,
// silently discarding any previous one.
func (s *Session) Select(selectedText string, a anchor.Anchor) (Ref, error) {
	if a.IsZero() || selectedText == "" {
		return Ref{}, ErrEmptySelection
	}

	if existing := Resolve(selectedText, a.Page, s.highlights); existing != nil {
		s.pending.Clear()
		return ExistingRef(existing.ID), nil
	}

	c := Candidate{
		DocumentID:   s.documentID,
		PageNumber:   a.Page,
		Anchor:       a,
		SelectedText: selectedText,
	}
	s.pending.Set(c)
	return PendingRef(c), nil
}

// Pending returns the current pending candidate, if any.
func (s *Session) Pending() (Candidate, bool) {
	return s.pending.Current()
}

// Abandon discards the pending candidate (chat panel closed without a
// message).
func (s *Session) Abandon() {
	s.pending.Clear()
}

// Ask runs one chat turn for the referenced highlight. A pending ref is
// promoted to a stored highlight first; any promotion failure aborts the
// whole turn and preserves the candidate for retry. Failures after promotion
// leave the now-real highlight intact — only the turn fails. On completion
// the highlight list is refetched so durable message ids are picked up.
func (s *Session) Ask(ctx context.Context, ref Ref, message string, sender chat.Sender, onDelta func(string)) (chat.Result, error) {
	highlightID, ok := ref.ID()
	if !ok {
		if _, isPending := ref.Pending(); !isPending {
			return chat.Result{}, errors.New("empty highlight ref")
		}
		promoted, err := s.pending.Promote(ctx, s.store)
		if err != nil {
			return chat.Result{}, fmt.Errorf("promoting pending highlight: %w", err)
		}
		highlightID = promoted.ID
	}

	req := chat.TurnRequest{
		HighlightID:    highlightID,
		Message:        message,
		ConversationID: s.conversationID(highlightID),
	}

	turn := chat.NewTurn()
	result, err := turn.Run(ctx, sender, req, onDelta)
	if err != nil {
		return chat.Result{}, err
	}

	if err := s.Refresh(ctx); err != nil {
		// The turn itself succeeded; surface the refresh failure but keep
		// the result usable.
		return result, fmt.Errorf("refreshing after turn: %w", err)
	}
	return result, nil
}

// conversationID returns the known conversation id for a highlight, or ""
// when the server should resolve or create it.
func (s *Session) conversationID(highlightID string) string {
	for i := range s.highlights {
		if s.highlights[i].ID == highlightID && s.highlights[i].Conversation != nil {
			return s.highlights[i].Conversation.ID
		}
	}
	return ""
}

// Delete removes a highlight and holds its snapshot as the undo tombstone,
// overwriting any previous tombstone. The in-memory list is refetched.
func (s *Session) Delete(ctx context.Context, id string) error {
	snap, err := s.store.DeleteHighlight(ctx, id)
	if err != nil {
		return err
	}
	s.tombstone = &snap
	return s.Refresh(ctx)
}

// Undo restores the tombstoned highlight with identical identifiers and
// timestamps, then clears the tombstone and refetches the list.
func (s *Session) Undo(ctx context.Context) (storage.Highlight, error) {
	if s.tombstone == nil {
		return storage.Highlight{}, ErrNoTombstone
	}

	restored, err := s.store.RestoreHighlight(ctx, *s.tombstone)
	if err != nil {
		return storage.Highlight{}, err
	}
	s.tombstone = nil

	if err := s.Refresh(ctx); err != nil {
		return restored, err
	}
	return restored, nil
}

// CanUndo reports whether a tombstone is held.
func (s *Session) CanUndo() bool {
	return s.tombstone != nil
}
