package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/async"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/extract"
	"github.com/joseph-ayodele/document-processor/internal/llm"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

var (
	ErrAlreadyTerminal = errors.New("document is already in a terminal state")
	ErrExtraction      = errors.New("extraction failed")
	ErrProcessing      = errors.New("ai processing failed")
	ErrTimeout         = errors.New("timed out")
)

// Store is the part of the document store the scheduler uses.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetByStatus(ctx context.Context, status constants.DocumentStatus) ([]*entity.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expect repository.Expect, upd repository.StatusUpdate) error
	GetProcessingOlderThan(ctx context.Context, age time.Duration) ([]*entity.Document, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Queue admits jobs without blocking.
type Queue interface {
	Enqueue(ctx context.Context, job async.Job) error
	Len() int
}

type (
	Extractor  = extract.ContentExtractor
	Summarizer = llm.Summarizer
)

// Options bound retries and external calls.
type Options struct {
	MaxRetries      int           // attempts before a document fails permanently, default 3
	ExtractTimeout  time.Duration // per content extraction call, default 2m
	AITimeout       time.Duration // per summarization call, default 2m
	StuckTimeout    time.Duration // PROCESSING longer than this is abandoned, default 30m
	FinalizeTimeout time.Duration // budget for the failure write, default 30s
}

const (
	DefaultMaxRetries   = 3
	DefaultStuckTimeout = 30 * time.Minute
	maxErrorMessageLen  = 2000
)

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 2 * time.Minute
	}
	if o.AITimeout <= 0 {
		o.AITimeout = 2 * time.Minute
	}
	if o.StuckTimeout <= 0 {
		o.StuckTimeout = DefaultStuckTimeout
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 30 * time.Second
	}
	return o
}

// retryTarget applies the retry policy to a document that just failed an
// attempt: it returns the new retry count and QUEUED while attempts remain,
// FAILED once they are exhausted.
func retryTarget(retryCount, maxRetries int) (int, constants.DocumentStatus) {
	next := retryCount + 1
	if next < maxRetries {
		return next, constants.StatusQueued
	}
	return next, constants.StatusFailed
}

func clipMessage(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	return s[:maxErrorMessageLen] + "...(truncated)"
}
