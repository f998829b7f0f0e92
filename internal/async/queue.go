package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job is an admission ticket for one document. Duplicates are allowed;
// the store's conditional transition decides who processes the document.
type Job struct {
	DocumentID uuid.UUID
	EnqueuedAt time.Time
	TraceID    string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// JobQueue is a bounded in-memory FIFO. Enqueue never blocks.
type JobQueue struct {
	logger *slog.Logger
	ch     chan Job

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

const defaultQueueSize = 100

func NewJobQueue(size int, logger *slog.Logger) *JobQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		logger: logger,
		ch:     make(chan Job, size),
		done:   make(chan struct{}),
	}
}

// Enqueue admits job or fails fast with ErrQueueFull / ErrQueueClosed.
func (q *JobQueue) Enqueue(_ context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "document_id", job.DocumentID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document for processing", "document_id", job.DocumentID, "depth", len(q.ch))
		return nil
	default:
		q.logger.Warn("queue full, rejecting job", "document_id", job.DocumentID, "capacity", cap(q.ch))
		return ErrQueueFull
	}
}

// Dequeue blocks until a job is available, ctx ends, or the queue shuts down.
// After Shutdown it returns ErrQueueClosed even if jobs remain buffered.
func (q *JobQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-q.done:
		return Job{}, ErrQueueClosed
	default:
	}
	select {
	case <-q.done:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job := <-q.ch:
		return job, nil
	}
}

// Shutdown stops admission and wakes every blocked Dequeue. Safe to call twice.
// It returns the number of jobs left behind in the buffer.
func (q *JobQueue) Shutdown() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	close(q.done)
	left := len(q.ch)
	q.logger.Info("job queue shut down", "abandoned_jobs", left)
	return left
}

func (q *JobQueue) Len() int { return len(q.ch) }

func (q *JobQueue) Cap() int { return cap(q.ch) }
