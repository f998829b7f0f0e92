package llm

import (
	"context"
	"errors"
)

var ErrEmptyInput = errors.New("no text to summarize")

// Summary is the normalized shape we want from the model.
type Summary struct {
	Text         string `json:"summary"`
	DocumentType string `json:"document_type,omitempty"`
	Category     string `json:"category,omitempty"`
}

// Summarizer is the AI processor the scheduler depends on.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (Summary, error)
}
