package core

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/extract"
	"github.com/joseph-ayodele/document-processor/internal/llm"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

type extractFunc func(ctx context.Context, ref string) (extract.Result, error)

func (f extractFunc) Extract(ctx context.Context, ref string) (extract.Result, error) { return f(ctx, ref) }

type summarizeFunc func(ctx context.Context, text string) (llm.Summary, error)

func (f summarizeFunc) Summarize(ctx context.Context, text string) (llm.Summary, error) {
	return f(ctx, text)
}

func fixedText(text string) extractFunc {
	return func(context.Context, string) (extract.Result, error) {
		return extract.Result{Text: text, SourceType: constants.TEXT}, nil
	}
}

func fixedSummary(text string) summarizeFunc {
	return func(context.Context, string) (llm.Summary, error) {
		return llm.Summary{Text: text}, nil
	}
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newTestStore(t *testing.T) repository.DocumentRepository {
	t.Helper()
	drv, err := repository.OpenSQLite(":memory:", testLogger())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = drv.Close() })
	if err := repository.Migrate(context.Background(), drv); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return repository.NewDocumentRepository(drv, testLogger())
}

func newDocument(t *testing.T, store repository.DocumentRepository) *entity.Document {
	t.Helper()
	id := uuid.New()
	doc, err := store.Create(context.Background(), entity.NewDocument{
		ID:            id,
		Filename:      id.String() + ".txt",
		FileExtension: "txt",
		StoragePath:   "/docs/" + id.String() + ".txt",
		Source:        constants.SourceLocalUpload,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return doc
}

// moveTo walks a fresh document to status through conditional updates.
func moveTo(t *testing.T, store repository.DocumentRepository, id uuid.UUID, from constants.DocumentStatus, upd repository.StatusUpdate) {
	t.Helper()
	if err := store.UpdateStatus(context.Background(), id, repository.Expect{Status: from}, upd); err != nil {
		t.Fatalf("UpdateStatus(%s -> %s) error: %v", from, upd.Status, err)
	}
}

func getDoc(t *testing.T, store repository.DocumentRepository, id uuid.UUID) *entity.Document {
	t.Helper()
	doc, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error: %v", id, err)
	}
	return doc
}

func waitForTerminal(t *testing.T, store repository.DocumentRepository, id uuid.UUID, timeout time.Duration) *entity.Document {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		doc := getDoc(t, store, id)
		if doc.Status == constants.StatusProcessed || doc.Status == constants.StatusFailed {
			return doc
		}
		if time.Now().After(deadline) {
			t.Fatalf("document %s still %s after %s (retry_count=%d)", id, doc.Status, timeout, doc.RetryCount)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startScheduler(t *testing.T, store repository.DocumentRepository, ex Extractor, sum Summarizer, cfg SchedulerConfig) *Scheduler {
	t.Helper()
	s := NewScheduler(store, ex, sum, testLogger(), cfg)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, async.Job) error { return nil }
func (nopQueue) Len() int { return 0 }

// recordingQueue keeps every admitted job and reports QueueFull past limit.
type recordingQueue struct {
	mu    sync.Mutex
	jobs  []async.Job
	limit int
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.jobs) >= q.limit {
		return async.ErrQueueFull
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Len() int { return q.count() }

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *recordingQueue) ids() map[uuid.UUID]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[uuid.UUID]int, len(q.jobs))
	for _, j := range q.jobs {
		out[j.DocumentID]++
	}
	return out
}
