package extract

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyContent      = errors.New("no text could be extracted")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
)

// ContentExtractor turns a storage reference into plain text.
type ContentExtractor interface {
	Extract(ctx context.Context, ref string) (Result, error)
}

// FormatExtractor handles one file format on a local path.
type FormatExtractor interface {
	ExtractFile(ctx context.Context, path string) (Result, error)
}

type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE | constants.TEXT
	Method     string // "plain-text" | "pdf-text" | "pdf-ocr" | "image-ocr"
	Duration   time.Duration
	Warnings   []string
}
