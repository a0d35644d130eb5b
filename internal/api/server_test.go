package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marginapp/margin/internal/prompt"
	"github.com/marginapp/margin/internal/provider"
	"github.com/marginapp/margin/internal/storage"
)

const testToken = "test-token"

type testApp struct {
	handler http.Handler
	store   *storage.Store
}

// newTestApp builds the full handler over an in-memory store. upstreamURL
// points the provider at a fake completion server; empty means unconfigured.
func newTestApp(t *testing.T, upstreamURL string) *testApp {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	apiKey := "test-key"
	if upstreamURL == "" {
		apiKey = ""
		upstreamURL = "http://127.0.0.1:0"
	}

	deps := AppDeps{
		Store:        store,
		Provider:     provider.NewClientWithBaseURL(apiKey, "test/model", upstreamURL),
		Prompter:     prompt.New(0),
		Token:        testToken,
		DocumentsDir: t.TempDir(),
	}
	return &testApp{handler: NewAppHandler(deps), store: store}
}

func (a *testApp) request(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testApp) postJSON(t *testing.T, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return a.request(t, http.MethodPost, path, bytes.NewReader(b), "application/json")
}

// uploadTestPDF posts a minimal multipart PDF and returns the created record.
func (a *testApp) uploadTestPDF(t *testing.T, filename string) storage.Document {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write([]byte("%PDF-1.4\n%%EOF\n"))
	mw.Close()

	rr := a.request(t, http.MethodPost, "/documents", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rr.Code, rr.Body.String())
	}

	var doc storage.Document
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return doc
}

// createTestHighlight stores a highlight for the given document.
func (a *testApp) createTestHighlight(t *testing.T, docID, text string, page int) storage.Highlight {
	t.Helper()
	h, err := a.store.CreateHighlight(context.Background(), storage.HighlightDraft{
		DocumentID:   docID,
		PageNumber:   page,
		SelectedText: text,
		Anchor:       `{"page":1,"startX":10,"startY":20,"endX":110,"endY":35,"startOffset":0,"endOffset":5}`,
	})
	if err != nil {
		t.Fatalf("CreateHighlight: %v", err)
	}
	return h
}

func TestHealthNoAuth(t *testing.T) {
	app := newTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("health status = %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t, "")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/highlights/h1", nil)
	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing token on delete: status = %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr = httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rr.Code)
	}
}

func TestUploadEnqueuesExtraction(t *testing.T) {
	app := newTestApp(t, "")
	doc := app.uploadTestPDF(t, "paper.pdf")

	if doc.Title != "paper" {
		t.Errorf("derived title = %q, want filename stem", doc.Title)
	}
	if doc.UploadedAt.IsZero() {
		t.Error("uploadedAt not set")
	}

	var jobCount int
	err := app.store.DB().QueryRow(`SELECT COUNT(*) FROM jobs WHERE type = 'extract_text' AND status = 'pending'`).Scan(&jobCount)
	if err != nil {
		t.Fatalf("querying jobs: %v", err)
	}
	if jobCount != 1 {
		t.Errorf("pending extract_text jobs = %d, want 1", jobCount)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	app := newTestApp(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("plain text"))
	mw.Close()

	rr := app.request(t, http.MethodPost, "/documents", &buf, mw.FormDataContentType())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	app := newTestApp(t, "")
	doc := app.uploadTestPDF(t, "paper.pdf")

	rr := app.request(t, http.MethodGet, "/documents", nil, "")
	var docs []storage.Document
	if err := json.Unmarshal(rr.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Fatalf("list = %+v", docs)
	}

	body, _ := json.Marshal(map[string]string{"title": "Renamed"})
	rr = app.request(t, http.MethodPatch, "/documents/"+doc.ID, bytes.NewReader(body), "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rr.Code)
	}
	var renamed storage.Document
	json.Unmarshal(rr.Body.Bytes(), &renamed)
	if renamed.Title != "Renamed" {
		t.Errorf("title = %q after rename", renamed.Title)
	}

	rr = app.request(t, http.MethodDelete, "/documents/"+doc.ID, nil, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = app.request(t, http.MethodGet, "/documents/"+doc.ID, nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestDocumentNotFound(t *testing.T) {
	app := newTestApp(t, "")

	rr := app.request(t, http.MethodGet, "/documents/missing", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get status = %d, want 404", rr.Code)
	}
	rr = app.request(t, http.MethodDelete, "/documents/missing", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete status = %d, want 404", rr.Code)
	}
}
