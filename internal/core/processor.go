package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/llm"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

// Processor drives one document through extraction and summarization.
type Processor struct {
	store      Store
	extractor  Extractor
	summarizer Summarizer
	queue      Queue
	logger     *slog.Logger
	opts       Options
	now        func() time.Time
}

func NewProcessor(store Store, extractor Extractor, summarizer Summarizer, queue Queue, logger *slog.Logger, opts Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		extractor:  extractor,
		summarizer: summarizer,
		queue:      queue,
		logger:     logger,
		opts:       opts.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle adapts ProcessDocument to the worker pool.
func (p *Processor) Handle(ctx context.Context, job async.Job) error {
	if job.TraceID != "" {
		ctx = common.WithRequestID(ctx, job.TraceID)
	}
	return p.ProcessDocument(common.WithDocumentID(ctx, job.DocumentID.String()), job.DocumentID)
}

// ProcessDocument claims a QUEUED document and runs one attempt. Losing the
// claim, a missing document, or a document in any other state is not an error.
// Once the claim is won the document always leaves PROCESSING, even on panic.
func (p *Processor) ProcessDocument(ctx context.Context, id uuid.UUID) (err error) {
	logger := p.logger.With("document_id", id)

	doc, err := p.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		logger.Warn("processor.document.not_found", "action", "discard_job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status != constants.StatusQueued {
		logger.Debug("processor.skip", "status", doc.Status)
		return nil
	}

	attempt := uuid.New()
	started := p.now()
	// pinning the retry count keeps fail() from writing over a newer count
	retryCount := doc.RetryCount
	err = p.store.UpdateStatus(ctx, id,
		repository.Expect{Status: constants.StatusQueued, RetryCount: &retryCount},
		repository.StatusUpdate{
			Status:              constants.StatusProcessing,
			AttemptID:           &attempt,
			ProcessingStartedAt: &started,
			ClearCompletedAt:    true,
			ClearOutputs:        true,
		})
	switch {
	case errors.Is(err, repository.ErrConditionFailed):
		logger.Debug("processor.claim.lost")
		return nil
	case errors.Is(err, repository.ErrNotFound):
		logger.Warn("processor.document.not_found", "action", "discard_job")
		return nil
	case err != nil:
		return fmt.Errorf("claim document: %w", err)
	}
	logger = logger.With("attempt_id", attempt, "retry_count", doc.RetryCount)
	logger.Info("processor.attempt.start", "storage_path", doc.StoragePath)

	finished := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error("processor.attempt.panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: panic: %v", ErrProcessing, r)
		}
		if finished {
			return
		}
		if err == nil {
			err = fmt.Errorf("%w: attempt ended without a result", ErrProcessing)
		}
		p.fail(ctx, logger, doc, attempt, err)
	}()

	text, err := p.extract(ctx, doc)
	if err != nil {
		return err
	}
	summary, err := p.summarize(ctx, text)
	if err != nil {
		return err
	}

	completed := p.now()
	if completed.Before(started) {
		completed = started
	}
	upd := repository.StatusUpdate{
		Status:                constants.StatusProcessed,
		ExtractedText:         &text,
		Summary:               &summary.Text,
		ProcessingCompletedAt: &completed,
		ProcessedAt:           &completed,
		ClearError:            true,
		ClearAttempt:          true,
	}
	if summary.DocumentType != "" {
		upd.DocumentTypeName = &summary.DocumentType
	}
	if summary.Category != "" {
		upd.DocumentTypeCategory = &summary.Category
	}
	err = p.store.UpdateStatus(ctx, id, repository.Expect{Status: constants.StatusProcessing, AttemptID: &attempt}, upd)
	switch {
	case err == nil:
		finished = true
		logger.Info("processor.attempt.processed",
			"text_chars", len(text),
			"document_type", summary.DocumentType,
			"duration_ms", completed.Sub(started).Milliseconds())
		return nil
	case errors.Is(err, repository.ErrConditionFailed), errors.Is(err, repository.ErrNotFound):
		// reclaimed by the stuck sweep or deleted while we worked
		finished = true
		logger.Debug("processor.complete.lost", "error", err)
		return nil
	default:
		return fmt.Errorf("persist result: %w", err)
	}
}

func (p *Processor) extract(ctx context.Context, doc *entity.Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ExtractTimeout)
	defer cancel()
	res, err := p.extractor.Extract(ctx, doc.StoragePath)
	if err != nil {
		return "", classify(ErrExtraction, err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("%w: no text extracted", ErrExtraction)
	}
	return text, nil
}

func (p *Processor) summarize(ctx context.Context, text string) (llm.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.AITimeout)
	defer cancel()
	s, err := p.summarizer.Summarize(ctx, text)
	if err != nil {
		return llm.Summary{}, classify(ErrProcessing, err)
	}
	if strings.TrimSpace(s.Text) == "" {
		return llm.Summary{}, fmt.Errorf("%w: empty summary", ErrProcessing)
	}
	return s, nil
}

func classify(kind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", kind, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// fail applies the retry policy to a lost attempt. It runs on a fresh context
// so a canceled caller cannot leave the document in PROCESSING.
func (p *Processor) fail(ctx context.Context, logger *slog.Logger, doc *entity.Document, attempt uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.FinalizeTimeout)
	defer cancel()

	retryCount, target := retryTarget(doc.RetryCount, p.opts.MaxRetries)
	msg := clipMessage(cause.Error())
	completed := p.now()
	logger.Error("processor.attempt.failed",
		"error", cause,
		"timeout", errors.Is(cause, ErrTimeout),
		"next_status", target,
		"retry_count", retryCount,
		"max_retries", p.opts.MaxRetries)

	err := p.store.UpdateStatus(ctx, doc.ID,
		repository.Expect{Status: constants.StatusProcessing, AttemptID: &attempt},
		repository.StatusUpdate{
			Status:                target,
			RetryCount:            &retryCount,
			ErrorMessage:          &msg,
			ProcessingCompletedAt: &completed,
			ClearAttempt:          true,
		})
	switch {
	case errors.Is(err, repository.ErrConditionFailed), errors.Is(err, repository.ErrNotFound):
		logger.Debug("processor.fail.lost", "error", err)
		return
	case err != nil:
		// the stuck sweep reclaims it after the timeout
		logger.Error("processor.fail.persist_error", "error", err)
		return
	}

	if target != constants.StatusQueued {
		logger.Warn("processor.document.failed_permanently", "retry_count", retryCount)
		return
	}
	if err := p.queue.Enqueue(ctx, async.Job{DocumentID: doc.ID, TraceID: common.RequestIDFromContext(ctx)}); err != nil {
		logger.Warn("processor.retry.enqueue_failed", "error", err, "left_status", constants.StatusQueued)
		return
	}
	logger.Info("processor.retry.enqueued", "retry_count", retryCount)
}
