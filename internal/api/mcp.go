package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marginapp/margin/internal/prompt"
	"github.com/marginapp/margin/internal/provider"
	"github.com/marginapp/margin/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Provider *provider.Client
	Prompter *prompt.Composer
}

// NewMCPServer creates an MCP server exposing the reading library to agents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"margin",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("margin — local PDF reading companion: documents, highlights, and passage Q&A."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the uploaded PDF documents in the reading library."),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("list_highlights",
			mcp.WithDescription("List the highlights of one document, including their conversations."),
			mcp.WithString("document_id", mcp.Description("Document id"), mcp.Required()),
		),
		mcpListHighlights(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_passage",
			mcp.WithDescription("Ask a question about a highlighted passage. Appends to the highlight's conversation and returns the full assistant answer."),
			mcp.WithString("highlight_id", mcp.Description("Highlight id"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAskPassage(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"margin://documents",
			"Document Library",
			mcp.WithResourceDescription("All uploaded documents as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}

		type docSummary struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Filename   string `json:"filename"`
			PageCount  int    `json:"page_count"`
			UploadedAt string `json:"uploaded_at"`
		}
		summaries := make([]docSummary, len(docs))
		for i, d := range docs {
			summaries[i] = docSummary{
				ID:         d.ID,
				Title:      d.Title,
				Filename:   d.Filename,
				PageCount:  d.PageCount,
				UploadedAt: d.UploadedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHighlights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		documentID, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}

		highlights, err := deps.Store.ListHighlightsByDocument(ctx, documentID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing highlights failed: %v", err)), nil
		}
		if len(highlights) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(highlights)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal highlights: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpAskPassage runs one full chat turn for a highlight, with the same
// persistence order as the HTTP chat endpoint: user message before the
// upstream call, assistant message only after the stream completes.
func mcpAskPassage(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		highlightID, err := req.RequireString("highlight_id")
		if err != nil {
			return mcpError("highlight_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		if !deps.Provider.Configured() {
			return mcpError("no provider API key configured"), nil
		}

		h, err := deps.Store.GetHighlight(ctx, highlightID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("highlight not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading highlight failed: %v", err)), nil
		}

		doc, err := deps.Store.GetDocument(h.DocumentID)
		if err != nil {
			return mcpError(fmt.Sprintf("loading document failed: %v", err)), nil
		}
		docText, err := deps.Store.GetDocumentText(h.DocumentID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("loading document text failed: %v", err)), nil
		}

		conv, err := deps.Store.GetOrCreateConversation(ctx, highlightID)
		if err != nil {
			return mcpError(fmt.Sprintf("resolving conversation failed: %v", err)), nil
		}
		history := conv.Messages
		if _, err := deps.Store.AppendMessage(ctx, conv.ID, "user", message); err != nil {
			return mcpError(fmt.Sprintf("saving message failed: %v", err)), nil
		}

		stream, err := deps.Provider.Stream(ctx, deps.Prompter.Compose(doc, docText, h, history, message))
		if err != nil {
			return mcpError(fmt.Sprintf("upstream error: %v", err)), nil
		}
		defer stream.Close()

		var assistant strings.Builder
		for {
			delta, err := stream.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return mcpError(fmt.Sprintf("upstream stream interrupted: %v", err)), nil
			}
			assistant.WriteString(delta)
		}

		if _, err := deps.Store.AppendMessage(ctx, conv.ID, "assistant", assistant.String()); err != nil {
			return mcpError(fmt.Sprintf("failed to persist assistant message: %v", err)), nil
		}
		return mcpText(assistant.String()), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
