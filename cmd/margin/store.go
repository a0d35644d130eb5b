package main

import (
	"context"
	"fmt"

	"github.com/marginapp/margin/internal/storage"
)

// httpStore adapts the management API to the highlight store façade, so the
// session aggregate works the same against a remote server as it does
// against an embedded store.
type httpStore struct {
	client *apiClient
}

func (s *httpStore) ListHighlightsByDocument(ctx context.Context, documentID string) ([]storage.Highlight, error) {
	resp, err := s.client.get("/documents/" + documentID + "/highlights")
	if err != nil {
		return nil, err
	}
	var highlights []storage.Highlight
	if err := decodeJSON(resp, &highlights); err != nil {
		return nil, err
	}
	return highlights, nil
}

func (s *httpStore) CreateHighlight(ctx context.Context, draft storage.HighlightDraft) (storage.Highlight, error) {
	resp, err := s.client.post("/highlights", draft)
	if err != nil {
		return storage.Highlight{}, err
	}
	var h storage.Highlight
	if err := decodeJSON(resp, &h); err != nil {
		return storage.Highlight{}, err
	}
	return h, nil
}

func (s *httpStore) DeleteHighlight(ctx context.Context, id string) (storage.Snapshot, error) {
	resp, err := s.client.delete("/highlights/" + id)
	if err != nil {
		return storage.Snapshot{}, err
	}
	var snap storage.Snapshot
	if err := decodeJSON(resp, &snap); err != nil {
		return storage.Snapshot{}, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

func (s *httpStore) RestoreHighlight(ctx context.Context, snap storage.Snapshot) (storage.Highlight, error) {
	resp, err := s.client.post("/highlights/restore", snap)
	if err != nil {
		return storage.Highlight{}, err
	}
	var restored storage.Highlight
	if err := decodeJSON(resp, &restored); err != nil {
		return storage.Highlight{}, err
	}
	return restored, nil
}
