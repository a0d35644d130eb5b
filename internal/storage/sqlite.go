package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sub-second precision matters here: the two messages of a chat turn land
// within the same second and restore must reproduce ordering exactly.
const timeFormat = time.RFC3339Nano

// Store wraps a SQLite database holding documents, highlights, conversations,
// messages, and the background job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "margin.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying database handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Documents ---

func (s *Store) SaveDocument(d Document) error {
	if d.ID == "" || d.Filename == "" || d.Filepath == "" {
		return fmt.Errorf("%w: document requires id, filename, filepath", ErrValidation)
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, filename, filepath, page_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Filename, d.Filepath, d.PageCount, d.UploadedAt.UTC().Format(timeFormat),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT id, title, filename, filepath, page_count, uploaded_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Filename, &d.Filepath, &d.PageCount, &uploadedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	if d.UploadedAt, err = time.Parse(timeFormat, uploadedAt); err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	return d, nil
}

func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, title, filename, filepath, page_count, uploaded_at
		FROM documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Filename, &d.Filepath, &d.PageCount, &uploadedAt); err != nil {
			return nil, err
		}
		if d.UploadedAt, err = time.Parse(timeFormat, uploadedAt); err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (s *Store) UpdateDocumentTitle(id, title string) error {
	res, err := s.db.Exec(`UPDATE documents SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentPageCount records the page count discovered during text
// extraction.
func (s *Store) UpdateDocumentPageCount(id string, pageCount int) error {
	res, err := s.db.Exec(`UPDATE documents SET page_count = ? WHERE id = ?`, pageCount, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document and everything hanging off it:
// extracted text, highlights, conversations, and messages.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM documents WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id IN (
		SELECT c.id FROM conversations c
		JOIN highlights h ON h.id = c.highlight_id
		WHERE h.document_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE highlight_id IN (
		SELECT id FROM highlights WHERE document_id = ?)`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM highlights WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM document_text WHERE document_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// --- Extracted text ---

func (s *Store) SaveDocumentText(documentID, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO document_text (document_id, content, extracted_at) VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET content = excluded.content, extracted_at = excluded.extracted_at`,
		documentID, content, time.Now().UTC().Format(timeFormat),
	)
	return err
}

func (s *Store) GetDocumentText(documentID string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM document_text WHERE document_id = ?`, documentID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return content, err
}

// --- Highlights ---

// CreateHighlight persists a draft and returns the stored highlight with a
// fresh id and no conversation.
func (s *Store) CreateHighlight(ctx context.Context, d HighlightDraft) (Highlight, error) {
	if d.DocumentID == "" || d.SelectedText == "" || d.Anchor == "" || d.PageNumber < 1 {
		return Highlight{}, fmt.Errorf("%w: highlight requires documentId, pageNumber >= 1, selectedText, anchor", ErrValidation)
	}

	h := Highlight{
		ID:           uuid.New().String(),
		DocumentID:   d.DocumentID,
		PageNumber:   d.PageNumber,
		SelectedText: d.SelectedText,
		Anchor:       d.Anchor,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO highlights (id, document_id, page_number, selected_text, anchor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.DocumentID, h.PageNumber, h.SelectedText, h.Anchor, h.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return Highlight{}, err
	}
	return h, nil
}

// GetHighlight returns one highlight with its conversation and messages.
func (s *Store) GetHighlight(ctx context.Context, id string) (Highlight, error) {
	var h Highlight
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, page_number, selected_text, anchor, created_at
		FROM highlights WHERE id = ?`, id,
	).Scan(&h.ID, &h.DocumentID, &h.PageNumber, &h.SelectedText, &h.Anchor, &createdAt)
	if err == sql.ErrNoRows {
		return Highlight{}, ErrNotFound
	}
	if err != nil {
		return Highlight{}, err
	}
	if h.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Highlight{}, fmt.Errorf("parsing created_at: %w", err)
	}

	conv, err := s.conversationForHighlight(ctx, h.ID)
	if err != nil {
		return Highlight{}, err
	}
	h.Conversation = conv
	return h, nil
}

// ListHighlightsByDocument returns every highlight for a document ordered by
// creation ascending, each with its conversation and messages (messages
// ordered by creation ascending). Callers treat this as a single logical
// fetch and replace their view of the document wholesale.
func (s *Store) ListHighlightsByDocument(ctx context.Context, documentID string) ([]Highlight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, page_number, selected_text, anchor, created_at
		FROM highlights WHERE document_id = ? ORDER BY created_at ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var highlights []Highlight
	for rows.Next() {
		var h Highlight
		var createdAt string
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.PageNumber, &h.SelectedText, &h.Anchor, &createdAt); err != nil {
			return nil, err
		}
		if h.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range highlights {
		conv, err := s.conversationForHighlight(ctx, highlights[i].ID)
		if err != nil {
			return nil, err
		}
		highlights[i].Conversation = conv
	}
	return highlights, nil
}

// conversationForHighlight returns the highlight's conversation with messages,
// or nil if no conversation exists yet.
func (s *Store) conversationForHighlight(ctx context.Context, highlightID string) (*Conversation, error) {
	var c Conversation
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, highlight_id, created_at FROM conversations WHERE highlight_id = ?`, highlightID,
	).Scan(&c.ID, &c.HighlightID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		var mCreatedAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &mCreatedAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = time.Parse(timeFormat, mCreatedAt); err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		c.Messages = append(c.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteHighlight removes a highlight and its conversation/messages, returning
// the complete pre-deletion snapshot for undo.
func (s *Store) DeleteHighlight(ctx context.Context, id string) (Snapshot, error) {
	h, err := s.GetHighlight(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Snapshot{}, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if h.Conversation != nil {
		if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, h.Conversation.ID); err != nil {
			return Snapshot{}, err
		}
		if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, h.Conversation.ID); err != nil {
			return Snapshot{}, err
		}
	}
	if _, err := tx.Exec(`DELETE FROM highlights WHERE id = ?`, id); err != nil {
		return Snapshot{}, err
	}

	if err := tx.Commit(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Highlight: h}, nil
}

// RestoreHighlight recreates a deleted highlight from its snapshot with
// identical identifiers and timestamps. Returns ErrConflict if the highlight
// id already exists.
func (s *Store) RestoreHighlight(ctx context.Context, snap Snapshot) (Highlight, error) {
	h := snap.Highlight
	if h.ID == "" {
		return Highlight{}, fmt.Errorf("%w: snapshot missing highlight id", ErrValidation)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Highlight{}, fmt.Errorf("beginning restore transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM highlights WHERE id = ?`, h.ID).Scan(&exists); err != nil {
		return Highlight{}, err
	}
	if exists > 0 {
		return Highlight{}, ErrConflict
	}

	if _, err := tx.Exec(`
		INSERT INTO highlights (id, document_id, page_number, selected_text, anchor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.DocumentID, h.PageNumber, h.SelectedText, h.Anchor, h.CreatedAt.Format(timeFormat),
	); err != nil {
		return Highlight{}, err
	}

	if c := h.Conversation; c != nil {
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, highlight_id, created_at) VALUES (?, ?, ?)`,
			c.ID, c.HighlightID, c.CreatedAt.Format(timeFormat),
		); err != nil {
			return Highlight{}, err
		}
		for _, m := range c.Messages {
			if _, err := tx.Exec(`
				INSERT INTO messages (id, conversation_id, role, content, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt.Format(timeFormat),
			); err != nil {
				return Highlight{}, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return Highlight{}, err
	}
	return h, nil
}

// --- Conversations and messages ---

// GetOrCreateConversation returns the highlight's 1:1 conversation, creating
// it if this is the highlight's first turn.
func (s *Store) GetOrCreateConversation(ctx context.Context, highlightID string) (Conversation, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM highlights WHERE id = ?`, highlightID).Scan(&exists); err != nil {
		return Conversation{}, err
	}
	if exists == 0 {
		return Conversation{}, ErrNotFound
	}

	conv, err := s.conversationForHighlight(ctx, highlightID)
	if err != nil {
		return Conversation{}, err
	}
	if conv != nil {
		return *conv, nil
	}

	c := Conversation{
		ID:          uuid.New().String(),
		HighlightID: highlightID,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, highlight_id, created_at) VALUES (?, ?, ?)`,
		c.ID, c.HighlightID, c.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// AppendMessage appends one message to a conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) (Message, error) {
	if role != "user" && role != "assistant" {
		return Message{}, fmt.Errorf("%w: role must be user or assistant", ErrValidation)
	}

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID).Scan(&exists); err != nil {
		return Message{}, err
	}
	if exists == 0 {
		return Message{}, ErrNotFound
	}

	m := Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt string
	var lastError sql.NullString
	var updatedAt string
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}
