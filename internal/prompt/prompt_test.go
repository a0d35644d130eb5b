package prompt

import (
	"strings"
	"testing"

	"github.com/marginapp/margin/internal/storage"
)

func testHighlight(text string, page int) storage.Highlight {
	return storage.Highlight{ID: "h1", DocumentID: "d1", PageNumber: page, SelectedText: text}
}

func TestCompose_Structure(t *testing.T) {
	c := New(4000)
	doc := storage.Document{ID: "d1", Title: "Attention Is All You Need"}
	history := []storage.Message{
		{Role: "user", Content: "what is this?"},
		{Role: "assistant", Content: "a transformer."},
	}

	msgs := c.Compose(doc, "full document text", testHighlight("the passage", 3), history, "tell me more")

	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want system + 2 history + user", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Content != "what is this?" || msgs[2].Content != "a transformer." {
		t.Error("history not replayed in stored order")
	}
	if msgs[3].Role != "user" || msgs[3].Content != "tell me more" {
		t.Errorf("last message = %+v, want the new user message", msgs[3])
	}

	sys := msgs[0].Content
	if !strings.Contains(sys, "Attention Is All You Need") {
		t.Error("system message missing document title")
	}
	if !strings.Contains(sys, "the passage") {
		t.Error("system message missing highlighted passage")
	}
	if !strings.Contains(sys, "page 3") {
		t.Error("system message missing page number")
	}
	if !strings.Contains(sys, "full document text") {
		t.Error("system message missing document excerpt")
	}
}

func TestCompose_NoDocumentText(t *testing.T) {
	c := New(4000)
	msgs := c.Compose(storage.Document{Title: "T"}, "", testHighlight("passage", 1), nil, "q")

	sys := msgs[0].Content
	if strings.Contains(sys, "[Document Excerpt]") {
		t.Error("excerpt section present with no document text")
	}
	if !strings.Contains(sys, "passage") {
		t.Error("passage must always be included")
	}
}

func TestExcerpt_CenteredOnPassage(t *testing.T) {
	c := New(25) // 100 char budget
	before := strings.Repeat("alpha ", 50)
	after := strings.Repeat("omega ", 50)
	docText := before + "NEEDLE PASSAGE" + after

	got := c.excerpt(docText, "NEEDLE PASSAGE")
	if !strings.Contains(got, "NEEDLE") {
		t.Fatalf("excerpt does not contain the passage: %q", got)
	}
	if len(got) > 100 {
		t.Errorf("excerpt length %d exceeds budget 100", len(got))
	}
	if !strings.Contains(got, "alpha") || !strings.Contains(got, "omega") {
		t.Errorf("excerpt not centered, got %q", got)
	}
}

func TestExcerpt_PassageNotFoundFallsBackToHead(t *testing.T) {
	c := New(25)
	docText := "HEAD " + strings.Repeat("body ", 200)

	got := c.excerpt(docText, "not in the document")
	if !strings.HasPrefix(got, "HEAD") {
		t.Errorf("fallback excerpt should start at the document head, got %q", got[:20])
	}
}

func TestExcerpt_ShortDocumentReturnedWhole(t *testing.T) {
	c := New(4000)
	docText := "a short document"
	if got := c.excerpt(docText, "anything"); got != docText {
		t.Errorf("excerpt = %q, want whole document", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}
