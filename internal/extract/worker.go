// Package extract runs the background text-extraction pipeline: uploaded
// documents are queued as extract_text jobs and their plain text is cached
// for prompt assembly.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/marginapp/margin/internal/pdftext"
	"github.com/marginapp/margin/internal/storage"
)

// JobType is the queue type handled by this worker.
const JobType = "extract_text"

// JobStore abstracts the job queue and document text operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	SaveDocumentText(documentID, content string) error
	UpdateDocumentPageCount(id string, pageCount int) error
}

// Extractor pulls plain text out of a PDF file.
type Extractor func(path string) (pdftext.Result, error)

// Worker processes extract_text jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	extract Extractor
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker. A nil extractor uses pdftext.Extract. If
// pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extract Extractor, pollInterval time.Duration) *Worker {
	if extract == nil {
		extract = pdftext.Extract
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		extract: extract,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single extract_text job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// Payload is the extract_text job payload.
type Payload struct {
	DocumentID string `json:"document_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload Payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	res, err := w.extract(doc.Filepath)
	if err != nil {
		return fmt.Errorf("extracting text from %s: %w", doc.Filepath, err)
	}

	if err := w.store.SaveDocumentText(doc.ID, res.Text); err != nil {
		return fmt.Errorf("saving document text: %w", err)
	}

	if res.PageCount > 0 && res.PageCount != doc.PageCount {
		if err := w.store.UpdateDocumentPageCount(doc.ID, res.PageCount); err != nil {
			return fmt.Errorf("updating page count: %w", err)
		}
	}

	return nil
}
