package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/marginapp/margin/internal/storage"
)

const maxChatBodySize = 1 << 20 // 1MB

type chatRequest struct {
	HighlightID    string `json:"highlightId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// handleChat runs one chat turn for a highlight and streams the assistant
// response as SSE frames. The user message is persisted before streaming
// begins; the assistant message is persisted only after the upstream
// completes, immediately before the done frame. A failed stream emits an
// error frame and persists nothing for the assistant side.
func handleChat(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.HighlightID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "highlightId is required")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		// Refuse before touching any state: an unconfigured provider must
		// not leave half a turn in the store.
		if !deps.Provider.Configured() {
			httpError(w, http.StatusServiceUnavailable, "configuration_error", "no provider API key configured")
			return
		}

		ctx := r.Context()
		h, err := deps.Store.GetHighlight(ctx, req.HighlightID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "highlight not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading highlight: %v", err)
			return
		}

		doc, err := deps.Store.GetDocument(h.DocumentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}

		// Extraction may still be pending; the passage alone is enough.
		docText, err := deps.Store.GetDocumentText(h.DocumentID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "loading document text: %v", err)
			return
		}

		// The server owns conversation identity: a client-sent id is only
		// validated, never trusted to create anything.
		conv, err := deps.Store.GetOrCreateConversation(ctx, req.HighlightID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving conversation: %v", err)
			return
		}
		if req.ConversationID != "" && req.ConversationID != conv.ID {
			httpError(w, http.StatusConflict, "conflict_error", "conversationId does not match this highlight")
			return
		}

		history := conv.Messages
		if _, err := deps.Store.AppendMessage(ctx, conv.ID, "user", req.Message); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving message: %v", err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		transcript := deps.Prompter.Compose(doc, docText, h, history, req.Message)
		stream, err := deps.Provider.Stream(ctx, transcript)
		if err != nil {
			writeErrorFrame(w, flusher, fmt.Sprintf("upstream error: %v", err))
			return
		}
		defer stream.Close()

		var assistant strings.Builder
		for {
			delta, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				slog.Warn("upstream stream failed mid-turn", "conversation_id", conv.ID, "error", err)
				writeErrorFrame(w, flusher, "upstream stream interrupted")
				return
			}
			writeFrame(w, flusher, map[string]string{"text": delta})
			assistant.WriteString(delta)
		}

		if _, err := deps.Store.AppendMessage(ctx, conv.ID, "assistant", assistant.String()); err != nil {
			slog.Error("failed to persist assistant message", "conversation_id", conv.ID, "error", err)
			writeErrorFrame(w, flusher, "failed to persist assistant message")
			return
		}

		writeFrame(w, flusher, map[string]any{"done": true, "conversationId": conv.ID})
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal frame", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func writeErrorFrame(w http.ResponseWriter, flusher http.Flusher, msg string) {
	writeFrame(w, flusher, map[string]string{"error": msg})
}
