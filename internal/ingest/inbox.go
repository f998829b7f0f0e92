package ingest

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Admitter hands a newly recorded document to the scheduler.
type Admitter interface {
	QueueDocumentForProcessing(ctx context.Context, id uuid.UUID) error
}

// RunInbox ingests every path received on paths and queues the new documents.
// Admission errors such as a full queue are logged; the document stays in the
// store for the recovery sweep. It returns when paths closes or ctx ends.
func RunInbox(ctx context.Context, paths <-chan string, ing Ingestor, admit Admitter, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			r, err := ing.IngestPath(ctx, p)
			if err != nil {
				logger.Warn("inbox.ingest.failed", "path", p, "error", err)
				continue
			}
			if r.Deduplicated {
				continue
			}
			if err := admit.QueueDocumentForProcessing(ctx, r.DocumentID); err != nil {
				logger.Warn("inbox.queue.failed", "document_id", r.DocumentID, "error", err)
				continue
			}
			logger.Info("inbox.queued", "path", p, "document_id", r.DocumentID)
		}
	}
}
