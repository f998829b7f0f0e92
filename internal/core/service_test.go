package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/extract"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

func TestRetryTarget(t *testing.T) {
	tests := []struct {
		retryCount, maxRetries int
		wantCount              int
		wantStatus             constants.DocumentStatus
	}{
		{0, 3, 1, constants.StatusQueued},
		{1, 3, 2, constants.StatusQueued},
		{2, 3, 3, constants.StatusFailed},
		{5, 3, 6, constants.StatusFailed},
		{0, 1, 1, constants.StatusFailed},
	}
	for _, tt := range tests {
		gotCount, gotStatus := retryTarget(tt.retryCount, tt.maxRetries)
		if gotCount != tt.wantCount || gotStatus != tt.wantStatus {
			t.Errorf("retryTarget(%d, %d) = %d, %s, want %d, %s",
				tt.retryCount, tt.maxRetries, gotCount, gotStatus, tt.wantCount, tt.wantStatus)
		}
	}
}

func TestQueueDocumentForProcessing(t *testing.T) {
	ctx := context.Background()

	t.Run("pending is queued and admitted", func(t *testing.T) {
		store := newTestStore(t)
		queue := &recordingQueue{}
		svc := NewService(store, queue, testLogger(), Options{})
		doc := newDocument(t, store)

		if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
			t.Fatalf("QueueDocumentForProcessing() error: %v", err)
		}
		if got := getDoc(t, store, doc.ID); got.Status != constants.StatusQueued {
			t.Fatalf("status = %s, want QUEUED", got.Status)
		}
		if queue.ids()[doc.ID] != 1 {
			t.Fatalf("jobs = %v, want one for %s", queue.ids(), doc.ID)
		}
	})

	t.Run("queued is admitted again", func(t *testing.T) {
		store := newTestStore(t)
		queue := &recordingQueue{}
		svc := NewService(store, queue, testLogger(), Options{})
		doc := newDocument(t, store)
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued})

		if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
			t.Fatalf("QueueDocumentForProcessing() error: %v", err)
		}
		if queue.count() != 1 {
			t.Fatalf("jobs = %d, want 1", queue.count())
		}
	})

	t.Run("processing is left alone", func(t *testing.T) {
		store := newTestStore(t)
		queue := &recordingQueue{}
		svc := NewService(store, queue, testLogger(), Options{})
		doc := newDocument(t, store)
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued})
		moveTo(t, store, doc.ID, constants.StatusQueued, repository.StatusUpdate{Status: constants.StatusProcessing})

		if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
			t.Fatalf("QueueDocumentForProcessing() error: %v", err)
		}
		if got := getDoc(t, store, doc.ID); got.Status != constants.StatusProcessing {
			t.Fatalf("status = %s, want PROCESSING", got.Status)
		}
		if queue.count() != 0 {
			t.Fatalf("jobs = %d, want 0", queue.count())
		}
	})

	t.Run("processed is terminal", func(t *testing.T) {
		store := newTestStore(t)
		svc := NewService(store, &recordingQueue{}, testLogger(), Options{})
		doc := newDocument(t, store)
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusProcessed})

		if err := svc.QueueDocumentForProcessing(ctx, doc.ID); !errors.Is(err, ErrAlreadyTerminal) {
			t.Fatalf("error = %v, want ErrAlreadyTerminal", err)
		}
	})

	t.Run("failed with retries left is queued", func(t *testing.T) {
		store := newTestStore(t)
		queue := &recordingQueue{}
		svc := NewService(store, queue, testLogger(), Options{MaxRetries: 3})
		doc := newDocument(t, store)
		one := 1
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusFailed, RetryCount: &one})

		if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
			t.Fatalf("QueueDocumentForProcessing() error: %v", err)
		}
		got := getDoc(t, store, doc.ID)
		if got.Status != constants.StatusQueued || got.RetryCount != 1 {
			t.Fatalf("status=%s retry=%d, want QUEUED/1", got.Status, got.RetryCount)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		store := newTestStore(t)
		svc := NewService(store, &recordingQueue{}, testLogger(), Options{})
		if err := svc.QueueDocumentForProcessing(ctx, uuid.New()); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestBackpressureLeavesDocumentQueued(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := async.NewJobQueue(1, testLogger())
	svc := NewService(store, queue, testLogger(), Options{})

	first := newDocument(t, store)
	second := newDocument(t, store)
	if err := svc.QueueDocumentForProcessing(ctx, first.ID); err != nil {
		t.Fatalf("first QueueDocumentForProcessing() error: %v", err)
	}
	if err := svc.QueueDocumentForProcessing(ctx, second.ID); !errors.Is(err, async.ErrQueueFull) {
		t.Fatalf("second error = %v, want ErrQueueFull", err)
	}
	if got := getDoc(t, store, second.ID); got.Status != constants.StatusQueued {
		t.Fatalf("status = %s, want QUEUED for the recovery sweep", got.Status)
	}
}

func TestResubmitDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := &recordingQueue{}
	svc := NewService(store, queue, testLogger(), Options{MaxRetries: 3})

	exhausted := newDocument(t, store)
	three := 3
	moveTo(t, store, exhausted.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusFailed, RetryCount: &three})
	if err := svc.QueueDocumentForProcessing(ctx, exhausted.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("QueueDocumentForProcessing() error = %v, want ErrAlreadyTerminal", err)
	}
	if err := svc.ResubmitDocument(ctx, exhausted.ID); err != nil {
		t.Fatalf("ResubmitDocument() error: %v", err)
	}
	got := getDoc(t, store, exhausted.ID)
	if got.Status != constants.StatusQueued || got.RetryCount != 3 {
		t.Fatalf("status=%s retry=%d, want QUEUED/3", got.Status, got.RetryCount)
	}

	processed := newDocument(t, store)
	moveTo(t, store, processed.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusProcessed})
	if err := svc.ResubmitDocument(ctx, processed.ID); err != nil {
		t.Fatalf("ResubmitDocument(processed) error: %v", err)
	}
	if got := getDoc(t, store, processed.ID); got.Status != constants.StatusQueued {
		t.Fatalf("status = %s, want QUEUED", got.Status)
	}
	if queue.count() != 2 {
		t.Fatalf("jobs = %d, want 2", queue.count())
	}
}

func TestResubmittedExhaustedDocumentGetsOneAttempt(t *testing.T) {
	store := newTestStore(t)
	doc := newDocument(t, store)
	three := 3
	moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusFailed, RetryCount: &three})

	failing := extractFunc(func(context.Context, string) (extract.Result, error) {
		return extract.Result{}, errors.New("still broken")
	})
	s := startScheduler(t, store, failing, fixedSummary("unused"), SchedulerConfig{Options: Options{MaxRetries: 3}})
	if err := s.Service.ResubmitDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("ResubmitDocument() error: %v", err)
	}
	got := waitForTerminal(t, store, doc.ID, 2*time.Second)
	if got.Status != constants.StatusFailed || got.RetryCount != 4 {
		t.Fatalf("status=%s retry=%d, want FAILED/4", got.Status, got.RetryCount)
	}
}

func TestDeleteDocumentDropsBufferedJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := &recordingQueue{}
	svc := NewService(store, queue, testLogger(), Options{})
	doc := newDocument(t, store)

	if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("QueueDocumentForProcessing() error: %v", err)
	}
	if err := svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument() error: %v", err)
	}
	if err := svc.DeleteDocument(ctx, doc.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second DeleteDocument() error = %v, want ErrNotFound", err)
	}

	var calls int
	counting := extractFunc(func(context.Context, string) (extract.Result, error) {
		calls++
		return extract.Result{Text: "x"}, nil
	})
	p := NewProcessor(store, counting, fixedSummary("s"), nopQueue{}, testLogger(), Options{})
	if err := p.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument() error = %v, want nil", err)
	}
	if calls != 0 {
		t.Fatalf("extractor ran %d times for a deleted document", calls)
	}
	if n, err := svc.RecoverStranded(ctx); err != nil || n != 0 {
		t.Fatalf("RecoverStranded() = %d, %v, want 0, nil", n, err)
	}
}

func TestRecoverStrandedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := &recordingQueue{}
	svc := NewService(store, queue, testLogger(), Options{})

	var pending, queued []uuid.UUID
	for i := 0; i < 3; i++ {
		pending = append(pending, newDocument(t, store).ID)
		doc := newDocument(t, store)
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued})
		queued = append(queued, doc.ID)
	}
	done := newDocument(t, store)
	moveTo(t, store, done.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusProcessed})

	for sweep := 1; sweep <= 2; sweep++ {
		n, err := svc.RecoverStranded(ctx)
		if err != nil {
			t.Fatalf("sweep %d: RecoverStranded() error: %v", sweep, err)
		}
		if n != 6 {
			t.Fatalf("sweep %d: recovered %d, want 6", sweep, n)
		}
	}

	if queue.count() != 12 {
		t.Fatalf("jobs = %d, want 12", queue.count())
	}
	ids := queue.ids()
	for _, id := range append(pending, queued...) {
		if ids[id] != 2 {
			t.Errorf("document %s enqueued %d times, want 2", id, ids[id])
		}
		got := getDoc(t, store, id)
		if got.Status != constants.StatusQueued || got.RetryCount != 0 {
			t.Errorf("document %s: status=%s retry=%d, want QUEUED/0", id, got.Status, got.RetryCount)
		}
	}
	if ids[done.ID] != 0 {
		t.Errorf("processed document was enqueued")
	}
}

func TestRecoverStrandedStopsAtQueueFull(t *testing.T) {
	store := newTestStore(t)
	queue := &recordingQueue{limit: 2}
	svc := NewService(store, queue, testLogger(), Options{})
	for i := 0; i < 5; i++ {
		newDocument(t, store)
	}

	n, err := svc.RecoverStranded(context.Background())
	if err != nil {
		t.Fatalf("RecoverStranded() error: %v", err)
	}
	if n != 2 {
		t.Fatalf("recovered %d, want 2", n)
	}
	docs, err := store.GetByStatus(context.Background(), constants.StatusPending)
	if err != nil {
		t.Fatalf("GetByStatus() error: %v", err)
	}
	// the document that hit the full queue was already moved to QUEUED
	if len(docs) != 2 {
		t.Fatalf("pending left = %d, want 2", len(docs))
	}
}

func TestCleanupStuckDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := &recordingQueue{}
	svc := NewService(store, queue, testLogger(), Options{MaxRetries: 3})

	claim := func(startedAgo time.Duration, retryCount int) uuid.UUID {
		doc := newDocument(t, store)
		attempt := uuid.New()
		started := time.Now().UTC().Add(-startedAgo)
		moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued, RetryCount: &retryCount})
		moveTo(t, store, doc.ID, constants.StatusQueued, repository.StatusUpdate{
			Status:              constants.StatusProcessing,
			AttemptID:           &attempt,
			ProcessingStartedAt: &started,
		})
		return doc.ID
	}
	old := claim(45*time.Minute, 0)
	oldExhausted := claim(2*time.Hour, 2)
	fresh := claim(5*time.Minute, 0)

	n, err := svc.CleanupStuckDocuments(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CleanupStuckDocuments() error: %v", err)
	}
	if n != 2 {
		t.Fatalf("reclaimed %d, want 2", n)
	}

	got := getDoc(t, store, old)
	if got.Status != constants.StatusQueued || got.RetryCount != 1 || got.AttemptID != nil {
		t.Fatalf("old: status=%s retry=%d attempt=%v", got.Status, got.RetryCount, got.AttemptID)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "abandoned") {
		t.Fatalf("old: error_message = %v", got.ErrorMessage)
	}
	if got := getDoc(t, store, oldExhausted); got.Status != constants.StatusFailed || got.RetryCount != 3 {
		t.Fatalf("exhausted: status=%s retry=%d, want FAILED/3", got.Status, got.RetryCount)
	}
	if got := getDoc(t, store, fresh); got.Status != constants.StatusProcessing || got.RetryCount != 0 {
		t.Fatalf("fresh: status=%s retry=%d, want untouched", got.Status, got.RetryCount)
	}
	if ids := queue.ids(); ids[old] != 1 || ids[oldExhausted] != 0 {
		t.Fatalf("jobs = %v", ids)
	}

	n, err = svc.CleanupStuckDocuments(ctx, 30*time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("second CleanupStuckDocuments() = %d, %v, want 0, nil", n, err)
	}
}

func TestCleanupDefaultsTimeout(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(store, &recordingQueue{}, testLogger(), Options{})
	doc := newDocument(t, store)
	started := time.Now().UTC().Add(-10 * time.Minute)
	moveTo(t, store, doc.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued})
	moveTo(t, store, doc.ID, constants.StatusQueued, repository.StatusUpdate{Status: constants.StatusProcessing, ProcessingStartedAt: &started})

	n, err := svc.CleanupStuckDocuments(context.Background(), 0)
	if err != nil || n != 0 {
		t.Fatalf("CleanupStuckDocuments(0) = %d, %v, want 0 under the 30m default", n, err)
	}
}

func TestSweepSkipsRecoveryWhileQueueBusy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	queue := &recordingQueue{}
	svc := NewService(store, queue, testLogger(), Options{})
	newDocument(t, store)

	svc.sweepOnce(ctx)
	if queue.count() != 1 {
		t.Fatalf("jobs after first sweep = %d, want 1", queue.count())
	}
	svc.sweepOnce(ctx)
	if queue.count() != 1 {
		t.Fatalf("jobs after second sweep = %d, want 1 while the queue is non-empty", queue.count())
	}
}

func TestSchedulerStartRecoversStrandedWork(t *testing.T) {
	store := newTestStore(t)
	pending := newDocument(t, store)
	queued := newDocument(t, store)
	moveTo(t, store, queued.ID, constants.StatusPending, repository.StatusUpdate{Status: constants.StatusQueued})

	startScheduler(t, store, fixedText("hello world"), fixedSummary("summary"), SchedulerConfig{})

	for _, id := range []uuid.UUID{pending.ID, queued.ID} {
		if got := waitForTerminal(t, store, id, 2*time.Second); got.Status != constants.StatusProcessed {
			t.Fatalf("document %s status = %s, want PROCESSED", id, got.Status)
		}
	}
}

func TestLogEventNamesCarryNoProse(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := newTestStore(t)
	queue := &recordingQueue{limit: 1}
	svc := NewService(store, queue, logger, Options{})
	failing := extractFunc(func(context.Context, string) (extract.Result, error) {
		return extract.Result{}, errors.New("unreadable")
	})
	p := NewProcessor(store, failing, fixedSummary("s"), queue, logger, Options{MaxRetries: 3})

	if err := p.ProcessDocument(ctx, uuid.New()); err != nil {
		t.Fatalf("ProcessDocument(missing) error: %v", err)
	}
	doc := newDocument(t, store)
	if err := svc.QueueDocumentForProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("QueueDocumentForProcessing() error: %v", err)
	}
	// the retry re-enqueue and the sweep both hit the full queue
	if err := p.ProcessDocument(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessDocument() error: %v", err)
	}
	newDocument(t, store)
	if _, err := svc.RecoverStranded(ctx); err != nil {
		t.Fatalf("RecoverStranded() error: %v", err)
	}

	eventName := regexp.MustCompile(`^[a-z_]+(\.[a-z_]+)+$`)
	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if !eventName.MatchString(rec.Msg) {
			t.Errorf("log message %q is not a dotted event name", rec.Msg)
		}
		seen[rec.Msg] = true
	}
	for _, want := range []string{"processor.document.not_found", "processor.retry.enqueue_failed", "recovery.queue_full"} {
		if !seen[want] {
			t.Errorf("missing event %q in %v", want, seen)
		}
	}
}
