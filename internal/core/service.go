package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

// Service is the outward face of the scheduler: admission, re-submission and
// the recovery sweeps.
type Service struct {
	store  Store
	queue  Queue
	logger *slog.Logger
	opts   Options
}

func NewService(store Store, queue Queue, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, logger: logger, opts: opts.withDefaults()}
}

// casRetries bounds how often admission re-reads a document whose status
// changed underneath it.
const casRetries = 3

// QueueDocumentForProcessing moves a PENDING or retryable FAILED document to
// QUEUED and admits it. A PROCESSING document is left alone. PROCESSED and
// exhausted FAILED documents return ErrAlreadyTerminal. When the queue is
// full the document stays QUEUED in the store and ErrQueueFull is returned;
// the next recovery sweep admits it.
func (s *Service) QueueDocumentForProcessing(ctx context.Context, id uuid.UUID) error {
	return s.admit(ctx, id, false)
}

// ResubmitDocument is an explicit re-submission by an external actor. Unlike
// QueueDocumentForProcessing it also accepts PROCESSED and exhausted FAILED
// documents. The retry count is kept, so an exhausted document gets one more
// attempt.
func (s *Service) ResubmitDocument(ctx context.Context, id uuid.UUID) error {
	return s.admit(ctx, id, true)
}

func (s *Service) admit(ctx context.Context, id uuid.UUID, force bool) error {
	logger := s.logger.With("document_id", id, "force", force)
	for i := 0; i < casRetries; i++ {
		doc, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}

		switch doc.Status {
		case constants.StatusProcessing:
			logger.Debug("admission.skip.in_flight")
			return nil
		case constants.StatusQueued:
			return s.enqueue(ctx, logger, id)
		case constants.StatusProcessed:
			if !force {
				return ErrAlreadyTerminal
			}
		case constants.StatusFailed:
			if !force && doc.RetryCount >= s.opts.MaxRetries {
				return ErrAlreadyTerminal
			}
		case constants.StatusPending:
		default:
			return fmt.Errorf("document %s has unknown status %q", id, doc.Status)
		}

		err = s.store.UpdateStatus(ctx, id,
			repository.Expect{Status: doc.Status},
			repository.StatusUpdate{Status: constants.StatusQueued})
		if errors.Is(err, repository.ErrConditionFailed) {
			logger.Debug("admission.cas.lost", "from", doc.Status)
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("admission.queued", "from", doc.Status, "retry_count", doc.RetryCount)
		return s.enqueue(ctx, logger, id)
	}
	return fmt.Errorf("document %s: %w", id, repository.ErrConditionFailed)
}

func (s *Service) enqueue(ctx context.Context, logger *slog.Logger, id uuid.UUID) error {
	_, reqID := common.EnsureRequestID(ctx)
	if err := s.queue.Enqueue(ctx, async.Job{DocumentID: id, TraceID: reqID}); err != nil {
		logger.Warn("admission.enqueue_failed", "error", err)
		return err
	}
	return nil
}

// GetDocument returns the stored document.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return s.store.GetByID(ctx, id)
}

// DeleteDocument soft-deletes a document. A job still buffered for it is
// discarded by the worker, and an attempt in flight loses its completion write.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("document.deleted", "document_id", id)
	return nil
}

// RecoverStranded re-admits every PENDING and QUEUED document, each at most
// once per sweep. PENDING documents move to QUEUED first. The sweep stops at
// the first QueueFull; what is left stays QUEUED for the next sweep.
func (s *Service) RecoverStranded(ctx context.Context) (int, error) {
	seen := make(map[uuid.UUID]struct{})
	recovered := 0
	for _, status := range []constants.DocumentStatus{constants.StatusQueued, constants.StatusPending} {
		docs, err := s.store.GetByStatus(ctx, status)
		if err != nil {
			return recovered, fmt.Errorf("list %s documents: %w", status, err)
		}
		for _, doc := range docs {
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}

			if doc.Status == constants.StatusPending {
				err := s.store.UpdateStatus(ctx, doc.ID,
					repository.Expect{Status: constants.StatusPending},
					repository.StatusUpdate{Status: constants.StatusQueued})
				if errors.Is(err, repository.ErrConditionFailed) || errors.Is(err, repository.ErrNotFound) {
					continue
				}
				if err != nil {
					return recovered, err
				}
			}

			err := s.queue.Enqueue(ctx, async.Job{DocumentID: doc.ID})
			if errors.Is(err, async.ErrQueueFull) {
				s.logger.Warn("recovery.queue_full", "recovered", recovered, "action", "stop_sweep")
				return recovered, nil
			}
			if err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Info("recovery.sweep.done", "recovered", recovered)
	}
	return recovered, nil
}

// CleanupStuckDocuments reclaims documents held in PROCESSING for longer than
// timeout (the configured default when timeout <= 0). Each counts as a failed
// attempt: it goes back to QUEUED and is re-admitted, or to FAILED once its
// retries are exhausted. The write is pinned to the attempt that was observed,
// so a worker that completes in the meantime wins.
func (s *Service) CleanupStuckDocuments(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = s.opts.StuckTimeout
	}
	docs, err := s.store.GetProcessingOlderThan(ctx, timeout)
	if err != nil {
		return 0, fmt.Errorf("list stuck documents: %w", err)
	}

	reclaimed := 0
	now := time.Now().UTC()
	for _, doc := range docs {
		logger := s.logger.With("document_id", doc.ID, "attempt_id", doc.AttemptID)
		retryCount, target := retryTarget(doc.RetryCount, s.opts.MaxRetries)
		msg := fmt.Sprintf("processing abandoned: exceeded %s in PROCESSING", timeout)

		err := s.store.UpdateStatus(ctx, doc.ID,
			repository.Expect{Status: constants.StatusProcessing, AttemptID: doc.AttemptID},
			repository.StatusUpdate{
				Status:                target,
				RetryCount:            &retryCount,
				ErrorMessage:          &msg,
				ProcessingCompletedAt: &now,
				ClearAttempt:          true,
			})
		if errors.Is(err, repository.ErrConditionFailed) || errors.Is(err, repository.ErrNotFound) {
			logger.Debug("cleanup.cas.lost", "error", err)
			continue
		}
		if err != nil {
			return reclaimed, err
		}
		reclaimed++
		logger.Warn("cleanup.reclaimed", "next_status", target, "retry_count", retryCount)

		if target == constants.StatusQueued {
			if err := s.queue.Enqueue(ctx, async.Job{DocumentID: doc.ID}); err != nil {
				logger.Warn("cleanup.enqueue_failed", "error", err, "left_status", constants.StatusQueued)
			}
		}
	}
	if reclaimed > 0 || len(docs) > 0 {
		s.logger.Info("cleanup.sweep.done", "candidates", len(docs), "reclaimed", reclaimed, "timeout", timeout)
	}
	return reclaimed, nil
}

// RunSweeper runs the stuck cleanup and, while the queue is drained, the
// stranded-document recovery every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	if _, err := s.CleanupStuckDocuments(ctx, 0); err != nil {
		s.logger.Error("sweeper.cleanup.failed", "error", err)
	}
	// jobs still buffered would be duplicated by a recovery pass
	if s.queue.Len() > 0 {
		s.logger.Debug("sweeper.recovery.skipped", "queue_depth", s.queue.Len())
		return
	}
	if _, err := s.RecoverStranded(ctx); err != nil {
		s.logger.Error("sweeper.recovery.failed", "error", err)
	}
}
