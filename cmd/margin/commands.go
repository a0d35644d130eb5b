package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marginapp/margin/internal/anchor"
	"github.com/marginapp/margin/internal/chat"
	"github.com/marginapp/margin/internal/config"
	"github.com/marginapp/margin/internal/highlight"
	"github.com/marginapp/margin/internal/storage"
)

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage uploaded documents",
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := uploadPDF(client, args[0], title)
		if err != nil {
			return err
		}

		var doc storage.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Uploaded %s (%s)", doc.Title, doc.ID)
		printStep("Text extraction queued")
		return nil
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/documents")
		if err != nil {
			return err
		}

		var docs []storage.Document
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			pages := ""
			if d.PageCount > 0 {
				pages = fmt.Sprintf("  %d pages", d.PageCount)
			}
			fmt.Printf("%s  %s%s\n", colorize(colorCyan, d.ID[:8]), d.Title, pages)
		}
		return nil
	},
}

var docsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch("/documents/"+args[0], map[string]string{"title": args[1]})
		if err != nil {
			return err
		}

		var doc storage.Document
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}

		printSuccess("Renamed to %s", doc.Title)
		return nil
	},
}

var docsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a document and everything attached to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/documents/" + args[0])
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

func init() {
	docsUploadCmd.Flags().String("title", "", "title for the document (default: filename)")
	docsCmd.AddCommand(docsUploadCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsRenameCmd)
	docsCmd.AddCommand(docsRmCmd)
}

// uploadPDF sends a multipart upload request for the file at path.
func uploadPDF(client *apiClient, path, title string) (*http.Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if title != "" {
		mw.WriteField("title", title)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return client.do("POST", "/documents", strings.NewReader(buf.String()), mw.FormDataContentType())
}

// --- highlights ---

var highlightsCmd = &cobra.Command{
	Use:   "highlights",
	Short: "Manage highlights",
}

var highlightsListCmd = &cobra.Command{
	Use:   "list <document-id>",
	Short: "List a document's highlights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/documents/" + args[0] + "/highlights")
		if err != nil {
			return err
		}

		var highlights []storage.Highlight
		if err := decodeJSON(resp, &highlights); err != nil {
			return err
		}

		if len(highlights) == 0 {
			fmt.Println("No highlights found.")
			return nil
		}

		for _, h := range highlights {
			text := h.SelectedText
			if len(text) > 80 {
				text = text[:80] + "..."
			}
			turns := ""
			if h.Conversation != nil {
				turns = fmt.Sprintf("  [%d messages]", len(h.Conversation.Messages))
			}
			fmt.Printf("%s  p.%-3d %s%s\n", colorize(colorCyan, h.ID[:8]), h.PageNumber, text, turns)
		}
		return nil
	},
}

var highlightsAddCmd = &cobra.Command{
	Use:   "add <document-id>",
	Short: "Create a highlight from a selection",
	Long: `Create a highlight from a selection rectangle.

The rectangle is given in device pixels at the render scale it was captured
at; it is normalized before storage so it renders correctly at any zoom.

Example:
  margin highlights add 4f1c... --page 3 --text "attention is all you need" \
    --rect 150,380,520,412 --scale 1.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		text, _ := cmd.Flags().GetString("text")
		rectStr, _ := cmd.Flags().GetString("rect")
		scale, _ := cmd.Flags().GetFloat64("scale")

		rect, err := parseRect(rectStr)
		if err != nil {
			return err
		}

		a := anchor.Normalize(rect, scale, page)
		if a.IsZero() || text == "" {
			return fmt.Errorf("selection is empty")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		draft := storage.HighlightDraft{
			DocumentID:   args[0],
			PageNumber:   page,
			Anchor:       a.Encode(),
			SelectedText: text,
		}
		resp, err := client.post("/highlights", draft)
		if err != nil {
			return err
		}

		var h storage.Highlight
		if err := decodeJSON(resp, &h); err != nil {
			return err
		}

		printSuccess("Highlighted p.%d: %s", h.PageNumber, h.ID)
		return nil
	},
}

var highlightsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a highlight (undoable with `margin undo`)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/highlights/" + args[0])
		if err != nil {
			return err
		}

		var snap storage.Snapshot
		if err := decodeJSON(resp, &snap); err != nil {
			return err
		}

		if err := saveTombstone(snap); err != nil {
			printWarning("deleted, but undo unavailable: %v", err)
			return nil
		}

		printSuccess("Deleted highlight %s (undo with `margin undo`)", args[0])
		return nil
	},
}

func init() {
	highlightsAddCmd.Flags().Int("page", 1, "1-based page number")
	highlightsAddCmd.Flags().String("text", "", "selected text")
	highlightsAddCmd.Flags().String("rect", "", "selection rectangle: startX,startY,endX,endY")
	highlightsAddCmd.Flags().Float64("scale", 1.0, "render scale the rectangle was captured at")
	highlightsCmd.AddCommand(highlightsListCmd)
	highlightsCmd.AddCommand(highlightsAddCmd)
	highlightsCmd.AddCommand(highlightsRmCmd)
}

func parseRect(s string) (anchor.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return anchor.Rect{}, fmt.Errorf("--rect wants startX,startY,endX,endY")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return anchor.Rect{}, fmt.Errorf("parsing --rect: %w", err)
		}
		vals[i] = v
	}
	return anchor.Rect{StartX: vals[0], StartY: vals[1], EndX: vals[2], EndY: vals[3]}, nil
}

// --- undo ---

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Restore the most recently deleted highlight",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, path, err := loadTombstone()
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/highlights/restore", snap)
		if err != nil {
			return err
		}

		var restored storage.Highlight
		if err := decodeJSON(resp, &restored); err != nil {
			return err
		}

		os.Remove(path)
		printSuccess("Restored highlight %s on p.%d", restored.ID, restored.PageNumber)
		return nil
	},
}

func tombstonePath() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Storage.DataDir, "undo.json"), nil
}

// saveTombstone holds the single undo slot; a later delete overwrites it.
func saveTombstone(snap storage.Snapshot) error {
	path, err := tombstonePath()
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadTombstone() (storage.Snapshot, string, error) {
	path, err := tombstonePath()
	if err != nil {
		return storage.Snapshot{}, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Snapshot{}, "", fmt.Errorf("nothing to undo")
		}
		return storage.Snapshot{}, "", err
	}
	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return storage.Snapshot{}, "", fmt.Errorf("reading undo state: %w", err)
	}
	return snap, path, nil
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <highlight-id> <message...>",
	Short: "Chat about a highlighted passage",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		highlightID := args[0]
		message := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		// An empty conversation id lets the server find or create the
		// highlight's conversation; the client never invents one.
		req := chat.TurnRequest{
			HighlightID: highlightID,
			Message:     message,
		}

		turn := chat.NewTurn()
		result, err := turn.Run(cmd.Context(), &sseSender{client: client}, req, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()
		if err != nil {
			return err
		}

		printStep("conversation %s", result.ConversationID)
		return nil
	},
}

// sseSender opens the /chat stream for one turn. It uses its own HTTP client
// with no timeout; the server bounds the upstream with a streaming deadline.
type sseSender struct {
	client *apiClient
}

func (s *sseSender) Send(ctx context.Context, req chat.TurnRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.client.baseURL+"/chat", strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.client.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("server not reachable — is margin running? (%w)", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// --- annotate ---

var annotateCmd = &cobra.Command{
	Use:   "annotate <document-id> <message...>",
	Short: "Select a passage and ask about it in one step",
	Long: `Select a passage and ask about it in one step.

A selection that matches an existing highlight reuses it (and its
conversation). A new selection is held as a pending candidate and only
becomes a stored highlight when the message goes out.

Example:
  margin annotate 4f1c... --page 3 --text "attention is all you need" \
    --rect 150,380,520,412 --scale 1.5 "why is this the key idea?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		documentID := args[0]
		message := strings.Join(args[1:], " ")

		page, _ := cmd.Flags().GetInt("page")
		text, _ := cmd.Flags().GetString("text")
		rectStr, _ := cmd.Flags().GetString("rect")
		scale, _ := cmd.Flags().GetFloat64("scale")

		rect, err := parseRect(rectStr)
		if err != nil {
			return err
		}
		a := anchor.Normalize(rect, scale, page)

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		session := highlight.NewSession(&httpStore{client: client}, documentID)
		if err := session.Refresh(ctx); err != nil {
			return err
		}

		ref, err := session.Select(text, a)
		if err != nil {
			return err
		}
		if id, ok := ref.ID(); ok {
			printStep("matches existing highlight %s", id)
		}

		result, err := session.Ask(ctx, ref, message, &sseSender{client: client}, func(delta string) {
			fmt.Print(delta)
		})
		fmt.Println()
		if err != nil {
			return err
		}

		printStep("conversation %s", result.ConversationID)
		return nil
	},
}

func init() {
	annotateCmd.Flags().Int("page", 1, "1-based page number")
	annotateCmd.Flags().String("text", "", "selected text")
	annotateCmd.Flags().String("rect", "", "selection rectangle: startX,startY,endX,endY")
	annotateCmd.Flags().Float64("scale", 1.0, "render scale the rectangle was captured at")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
