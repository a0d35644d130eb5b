// Package api implements the HTTP surface of the margin server: document
// management, highlight lifecycle, and the streaming chat endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marginapp/margin/internal/prompt"
	"github.com/marginapp/margin/internal/provider"
	"github.com/marginapp/margin/internal/storage"
)

// AppDeps holds the dependencies of the HTTP handlers.
type AppDeps struct {
	Store        *storage.Store
	Provider     *provider.Client
	Prompter     *prompt.Composer
	Token        string
	DocumentsDir string
}

// NewAppHandler returns the authenticated application router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Get("/documents/{id}", handleGetDocument(deps))
		r.Patch("/documents/{id}", handleRenameDocument(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Get("/documents/{id}/highlights", handleListHighlights(deps))

		r.Post("/highlights", handleCreateHighlight(deps))
		r.Delete("/highlights/{id}", handleDeleteHighlight(deps))
		r.Post("/highlights/restore", handleRestoreHighlight(deps))

		r.Post("/chat", handleChat(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
