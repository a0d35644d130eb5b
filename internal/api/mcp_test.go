package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/marginapp/margin/internal/prompt"
	"github.com/marginapp/margin/internal/provider"
	"github.com/marginapp/margin/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T, upstreamURL string) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	apiKey := "test-key"
	if upstreamURL == "" {
		apiKey = ""
		upstreamURL = "http://127.0.0.1:0"
	}

	return MCPDeps{
		Store:    store,
		Provider: provider.NewClientWithBaseURL(apiKey, "test/model", upstreamURL),
		Prompter: prompt.New(0),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func saveMCPDocument(t *testing.T, store *storage.Store, id string) storage.Document {
	t.Helper()
	d := storage.Document{
		ID:         id,
		Title:      "Test Paper",
		Filename:   "test.pdf",
		Filepath:   "/data/documents/" + id + ".pdf",
		PageCount:  12,
		UploadedAt: time.Now().UTC(),
	}
	if err := store.SaveDocument(d); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	return d
}

// --- tests ---

func TestMCPListDocuments(t *testing.T) {
	deps, store := newTestMCPDeps(t, "")
	saveMCPDocument(t, store, "doc-1")

	result, err := mcpListDocuments(deps)(context.Background(), makeCallToolRequest("list_documents", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var docs []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &docs); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(docs) != 1 || docs[0]["id"] != "doc-1" || docs[0]["page_count"] != float64(12) {
		t.Errorf("docs = %+v", docs)
	}
}

func TestMCPListHighlights(t *testing.T) {
	deps, store := newTestMCPDeps(t, "")
	saveMCPDocument(t, store, "doc-1")

	h, err := store.CreateHighlight(context.Background(), storage.HighlightDraft{
		DocumentID:   "doc-1",
		PageNumber:   3,
		SelectedText: "a marked passage",
		Anchor:       "{}",
	})
	if err != nil {
		t.Fatalf("CreateHighlight: %v", err)
	}

	result, err := mcpListHighlights(deps)(context.Background(),
		makeCallToolRequest("list_highlights", map[string]interface{}{"document_id": "doc-1"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var highlights []storage.Highlight
	if err := json.Unmarshal([]byte(toolText(t, result)), &highlights); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(highlights) != 1 || highlights[0].ID != h.ID {
		t.Errorf("highlights = %+v", highlights)
	}
}

func TestMCPListHighlightsMissingArg(t *testing.T) {
	deps, _ := newTestMCPDeps(t, "")

	result, err := mcpListHighlights(deps)(context.Background(),
		makeCallToolRequest("list_highlights", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing document_id should be a tool error")
	}
}

func TestMCPAskPassage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"It means attention.\"}}]}\n\ndata: [DONE]\n\n")
	}))
	t.Cleanup(upstream.Close)

	deps, store := newTestMCPDeps(t, upstream.URL)
	saveMCPDocument(t, store, "doc-1")
	h, err := store.CreateHighlight(context.Background(), storage.HighlightDraft{
		DocumentID:   "doc-1",
		PageNumber:   1,
		SelectedText: "the passage",
		Anchor:       "{}",
	})
	if err != nil {
		t.Fatalf("CreateHighlight: %v", err)
	}

	result, err := mcpAskPassage(deps)(context.Background(),
		makeCallToolRequest("ask_passage", map[string]interface{}{
			"highlight_id": h.ID,
			"message":      "what does this mean?",
		}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "It means attention." {
		t.Errorf("answer = %q", got)
	}

	// The turn is persisted on the highlight's conversation.
	stored, err := store.GetHighlight(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHighlight: %v", err)
	}
	if stored.Conversation == nil || len(stored.Conversation.Messages) != 2 {
		t.Errorf("conversation = %+v, want user + assistant", stored.Conversation)
	}
}

func TestMCPAskPassageUnconfigured(t *testing.T) {
	deps, store := newTestMCPDeps(t, "")
	saveMCPDocument(t, store, "doc-1")
	h, _ := store.CreateHighlight(context.Background(), storage.HighlightDraft{
		DocumentID: "doc-1", PageNumber: 1, SelectedText: "x", Anchor: "{}",
	})

	result, err := mcpAskPassage(deps)(context.Background(),
		makeCallToolRequest("ask_passage", map[string]interface{}{
			"highlight_id": h.ID,
			"message":      "q",
		}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("unconfigured provider should be a tool error")
	}
}

func TestMCPAskPassageHighlightNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(upstream.Close)

	deps, _ := newTestMCPDeps(t, upstream.URL)
	result, err := mcpAskPassage(deps)(context.Background(),
		makeCallToolRequest("ask_passage", map[string]interface{}{
			"highlight_id": "missing",
			"message":      "q",
		}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing highlight should be a tool error")
	}
}

func TestMCPResourceDocuments(t *testing.T) {
	deps, store := newTestMCPDeps(t, "")
	saveMCPDocument(t, store, "doc-1")

	contents, err := mcpResourceDocuments(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "margin://documents"},
	})
	if err != nil {
		t.Fatalf("resource error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %+v", contents)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var docs []storage.Document
	if err := json.Unmarshal([]byte(text.Text), &docs); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-1" {
		t.Errorf("docs = %+v", docs)
	}
}
