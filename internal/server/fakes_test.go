package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/core"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

var (
	queuedID   = uuid.MustParse("7b0c3f0e-2f4b-4a53-9c1e-5b0f6a2d9e01")
	fullID     = uuid.MustParse("7b0c3f0e-2f4b-4a53-9c1e-5b0f6a2d9e02")
	terminalID = uuid.MustParse("7b0c3f0e-2f4b-4a53-9c1e-5b0f6a2d9e03")
)

// fakeService answers by document id: queuedID succeeds, fullID hits a full
// queue, terminalID is already processed, anything else is unknown.
type fakeService struct {
	mu             sync.Mutex
	queued         []uuid.UUID
	resubmitted    []uuid.UUID
	deleted        []uuid.UUID
	cleanupTimeout time.Duration
}

func (f *fakeService) outcome(id uuid.UUID) error {
	switch id {
	case queuedID:
		return nil
	case fullID:
		return async.ErrQueueFull
	case terminalID:
		return core.ErrAlreadyTerminal
	default:
		return repository.ErrNotFound
	}
}

func (f *fakeService) QueueDocumentForProcessing(_ context.Context, id uuid.UUID) error {
	if err := f.outcome(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, id)
	return nil
}

func (f *fakeService) ResubmitDocument(_ context.Context, id uuid.UUID) error {
	if id == terminalID {
		id = queuedID
	}
	if err := f.outcome(id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resubmitted = append(f.resubmitted, id)
	return nil
}

func (f *fakeService) GetDocument(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	if id != queuedID {
		return nil, repository.ErrNotFound
	}
	summary := "a short summary"
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	return &entity.Document{
		ID:                    id,
		Filename:              "invoice.pdf",
		FileExtension:         "pdf",
		StoragePath:           "/docs/invoice.pdf",
		Source:                constants.SourceLocalUpload,
		Status:                constants.StatusProcessed,
		Summary:               &summary,
		ProcessingStartedAt:   &started,
		ProcessingCompletedAt: &completed,
		UploadedAt:            started.Add(-time.Minute),
		UpdatedAt:             completed,
	}, nil
}

func (f *fakeService) DeleteDocument(_ context.Context, id uuid.UUID) error {
	if id != queuedID {
		return repository.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) RecoverStranded(context.Context) (int, error) { return 4, nil }

func (f *fakeService) CleanupStuckDocuments(_ context.Context, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupTimeout = timeout
	return 2, nil
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

var errDown = errors.New("connection refused")

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }
