package core

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/document-processor/internal/async"
)

type SchedulerConfig struct {
	Options
	MaxConcurrency int // default 3
	QueueSize      int // default 100
}

// Scheduler wires the job queue, the worker pool, the processor and the
// outward service around one store.
type Scheduler struct {
	Queue     *async.JobQueue
	Pool      *async.WorkerPool
	Processor *Processor
	Service   *Service
	logger    *slog.Logger
}

func NewScheduler(store Store, extractor Extractor, summarizer Summarizer, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	queue := async.NewJobQueue(cfg.QueueSize, logger.With("component", "queue"))
	proc := NewProcessor(store, extractor, summarizer, queue, logger.With("component", "processor"), cfg.Options)
	pool := async.NewWorkerPool(queue, proc.Handle, logger.With("component", "pool"), async.WithWorkers(cfg.MaxConcurrency))
	svc := NewService(store, queue, logger.With("component", "service"), cfg.Options)
	return &Scheduler{
		Queue:     queue,
		Pool:      pool,
		Processor: proc,
		Service:   svc,
		logger:    logger,
	}
}

// Start launches the workers and then runs the startup recovery sweep, so
// stranded documents from a previous run are admitted before new work.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Pool.Start(ctx); err != nil {
		return err
	}
	n, err := s.Service.RecoverStranded(ctx)
	if err != nil {
		s.logger.Error("scheduler.recovery.failed", "error", err)
		return err
	}
	s.logger.Info("scheduler.started", "recovered", n)
	return nil
}

// Stop stops admission and waits for in-flight attempts. Jobs still buffered
// stay QUEUED in the store for the next startup.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.Pool.Stop(ctx)
}
