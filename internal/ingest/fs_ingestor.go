package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/entity"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

var ErrUnsupportedExt = errors.New("unsupported or missing extension")

// FSIngestor reads from the local filesystem. Files are referenced in place;
// the storage path is the absolute path.
type FSIngestor struct {
	Docs       DocumentCreator
	UploadedBy string
	Logger     *slog.Logger
}

func NewFSIngestor(docs DocumentCreator, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Docs: docs, Logger: logger}
}

// IngestPath hashes the file and creates a PENDING document unless one with
// the same content already exists.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (Result, error) {
	var out Result

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !constants.IsAllowedExt(ext) {
		return out, fmt.Errorf("%w: %q", ErrUnsupportedExt, ext)
	}

	sum, size, err := hashFile(abs)
	if err != nil {
		i.Logger.Error("ingest.hash.failed", "path", abs, "error", err)
		return out, err
	}

	existing, err := i.Docs.GetByContentHash(ctx, sum)
	switch {
	case err == nil:
		i.Logger.Info("ingest.deduplicated", "path", abs, "document_id", existing.ID, "hash", sum)
		return Result{
			SourcePath:   existing.StoragePath,
			DocumentID:   existing.ID,
			Deduplicated: true,
			HashHex:      sum,
			FileExt:      existing.FileExtension,
			UploadedAt:   existing.UploadedAt,
		}, nil
	case !errors.Is(err, repository.ErrNotFound):
		return out, fmt.Errorf("lookup content hash: %w", err)
	}

	var uploadedBy *string
	if i.UploadedBy != "" {
		uploadedBy = &i.UploadedBy
	}
	name := filepath.Base(abs)
	doc, err := i.Docs.Create(ctx, entityFor(abs, name, ext, size, sum, uploadedBy))
	if err != nil {
		return out, fmt.Errorf("create document: %w", err)
	}
	i.Logger.Info("ingest.created", "path", abs, "document_id", doc.ID, "ext", ext, "size", size)

	return Result{
		SourcePath: doc.StoragePath,
		DocumentID: doc.ID,
		HashHex:    sum,
		FileExt:    doc.FileExtension,
		UploadedAt: doc.UploadedAt,
	}, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func entityFor(abs, name, ext string, size int64, hash string, uploadedBy *string) entity.NewDocument {
	return entity.NewDocument{
		ID:               uuid.New(),
		Filename:         name,
		OriginalFilename: name,
		FileExtension:    ext,
		FileSize:         size,
		ContentType:      constants.ContentTypeForExt(ext),
		ContentHash:      hash,
		StoragePath:      abs,
		Source:           constants.SourceFileShare,
		UploadedBy:       uploadedBy,
	}
}
