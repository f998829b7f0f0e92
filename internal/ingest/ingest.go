package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/internal/entity"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string
	DocumentID   uuid.UUID
	Deduplicated bool
	HashHex      string
	FileExt      string
	UploadedAt   time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor records files as PENDING documents.
type Ingestor interface {
	// IngestPath records a single file.
	IngestPath(ctx context.Context, path string) (Result, error)
	// IngestDirectory records all supported files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error)
}

// DocumentCreator is the slice of the document store ingestion writes to.
type DocumentCreator interface {
	Create(ctx context.Context, doc entity.NewDocument) (*entity.Document, error)
	GetByContentHash(ctx context.Context, hash string) (*entity.Document, error)
}
