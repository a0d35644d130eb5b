package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marginapp/margin/internal/storage"
)

func handleListHighlights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetDocument(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "document not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}

		highlights, err := deps.Store.ListHighlightsByDocument(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing highlights: %v", err)
			return
		}
		if highlights == nil {
			highlights = []storage.Highlight{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(highlights)
	}
}

func handleCreateHighlight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var draft storage.HighlightDraft
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if _, err := deps.Store.GetDocument(draft.DocumentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "document not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}

		h, err := deps.Store.CreateHighlight(r.Context(), draft)
		if err != nil {
			if errors.Is(err, storage.ErrValidation) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "creating highlight: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(h)
	}
}

// handleDeleteHighlight deletes a highlight and returns its full snapshot so
// the client can offer undo.
func handleDeleteHighlight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.Store.DeleteHighlight(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "highlight not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "deleting highlight: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	}
}

// handleRestoreHighlight re-creates a deleted highlight from its snapshot,
// preserving every id and timestamp.
func handleRestoreHighlight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snap storage.Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if snap.Highlight.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "snapshot highlight id is required")
			return
		}

		restored, err := deps.Store.RestoreHighlight(r.Context(), snap)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				httpError(w, http.StatusConflict, "conflict_error", "highlight already exists")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "restoring highlight: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(restored)
	}
}
