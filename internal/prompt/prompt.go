// Package prompt assembles the provider transcript for one chat turn: a
// system message grounding the model in the document and the highlighted
// passage, followed by the conversation history and the new user message.
package prompt

import (
	"fmt"
	"strings"

	"github.com/marginapp/margin/internal/provider"
	"github.com/marginapp/margin/internal/storage"
)

const defaultMaxContextTokens = 4000

const systemPreamble = "You are a reading companion. The user is reading a PDF document and has " +
	"highlighted a passage. Answer their questions about that passage, grounded " +
	"in the document excerpt below. Be concise. If the excerpt does not contain " +
	"the answer, say so rather than guessing."

// Composer builds chat transcripts under a token budget for injected
// document context.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for the document
// excerpt. If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the full message list for one turn. docText may be empty
// (extraction still pending); the passage itself is always included. History
// is replayed in stored order, then the new user message is appended last.
func (c *Composer) Compose(doc storage.Document, docText string, h storage.Highlight, history []storage.Message, userMessage string) []provider.Message {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	sb.WriteString("\n\n[Document]\n")
	sb.WriteString(doc.Title)

	fmt.Fprintf(&sb, "\n\n[Highlighted Passage (page %d)]\n", h.PageNumber)
	sb.WriteString(h.SelectedText)

	if excerpt := c.excerpt(docText, h.SelectedText); excerpt != "" {
		sb.WriteString("\n\n[Document Excerpt]\n")
		sb.WriteString(excerpt)
	}

	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: "system", Content: sb.String()})
	for _, m := range history {
		msgs = append(msgs, provider.Message{Role: m.Role, Content: m.Content})
	}
	return append(msgs, provider.Message{Role: "user", Content: userMessage})
}

// excerpt returns a budget-capped slice of the document text centered on the
// passage, so the model sees the surrounding argument and not just the
// highlighted sentence. When the passage is not found (extraction noise,
// hyphenation) the head of the document is used instead.
func (c *Composer) excerpt(docText, passage string) string {
	docText = strings.TrimSpace(docText)
	if docText == "" {
		return ""
	}

	budget := c.MaxContextTokens * 4
	if len(docText) <= budget {
		return docText
	}

	center := len(docText) / 2
	if i := strings.Index(docText, passage); i >= 0 {
		center = i + len(passage)/2
	} else {
		center = budget / 2
	}

	start := center - budget/2
	if start < 0 {
		start = 0
	}
	end := start + budget
	if end > len(docText) {
		end = len(docText)
		start = end - budget
	}

	out := docText[start:end]
	// Trim the cut-off words at the window edges.
	if start > 0 {
		if i := strings.IndexByte(out, ' '); i >= 0 {
			out = out[i+1:]
		}
	}
	if end < len(docText) {
		if i := strings.LastIndexByte(out, ' '); i >= 0 {
			out = out[:i]
		}
	}
	return out
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
