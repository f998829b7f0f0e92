package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler runs one job end to end. Errors are logged, never propagated.
type Handler func(ctx context.Context, job Job) error

// WorkerPool drains a JobQueue with a fixed number of workers.
type WorkerPool struct {
	queue   *JobQueue
	handle  Handler
	logger  *slog.Logger
	workers int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	inFlight  atomic.Int64
	processed atomic.Int64
	panics    atomic.Int64
}

type Option func(*WorkerPool)

func WithWorkers(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.workers = n
		}
	}
}

const defaultWorkers = 3

func NewWorkerPool(queue *JobQueue, handle Handler, logger *slog.Logger, opts ...Option) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &WorkerPool{
		queue:   queue,
		handle:  handle,
		logger:  logger,
		workers: defaultWorkers,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. Canceling ctx stops dequeuing like Stop does;
// jobs already picked up still run to completion.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	jobCtx := context.WithoutCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.logger.Info("worker started", "worker_id", workerID)
			for {
				job, err := p.queue.Dequeue(runCtx)
				if err != nil {
					break
				}
				p.runOne(jobCtx, workerID, job)
			}
			p.logger.Info("worker stopped", "worker_id", workerID)
		}(i + 1)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "queue_capacity", p.queue.Cap())
	return nil
}

func (p *WorkerPool) runOne(ctx context.Context, workerID int, job Job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("worker recovered from panic",
				"worker_id", workerID,
				"document_id", job.DocumentID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if err := p.handle(ctx, job); err != nil {
		p.logger.Error("processing failed", "worker_id", workerID, "document_id", job.DocumentID, "error", err)
		return
	}
	p.processed.Add(1)
}

// Stop closes the queue and waits for in-flight jobs, or for ctx to end.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	p.queue.Shutdown()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("worker pool stop interrupted by context", "in_flight", p.inFlight.Load())
		return ctx.Err()
	case <-done:
		p.logger.Info("worker pool stopped", "processed", p.processed.Load())
		return nil
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers    int
	InFlight   int64
	Processed  int64
	Panics     int64
	QueueDepth int
}

func (p *WorkerPool) Stats() Stats {
	return Stats{
		Workers:    p.workers,
		InFlight:   p.inFlight.Load(),
		Processed:  p.processed.Load(),
		Panics:     p.panics.Load(),
		QueueDepth: p.queue.Len(),
	}
}
