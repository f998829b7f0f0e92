package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
)

// Document is a stored document and its processing state.
type Document struct {
	ID                    uuid.UUID                `json:"id"`
	Filename              string                   `json:"filename"`
	OriginalFilename      string                   `json:"original_filename"`
	FileExtension         string                   `json:"file_extension"`
	FileSize              int64                    `json:"file_size"`
	ContentType           string                   `json:"content_type"`
	ContentHash           string                   `json:"content_hash,omitempty"`
	StoragePath           string                   `json:"storage_path"`
	Source                constants.DocumentSource `json:"source"`
	Status                constants.DocumentStatus `json:"status"`
	RetryCount            int                      `json:"retry_count"`
	ErrorMessage          *string                  `json:"error_message,omitempty"`
	AttemptID             *uuid.UUID               `json:"attempt_id,omitempty"`
	ProcessingStartedAt   *time.Time               `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time               `json:"processing_completed_at,omitempty"`
	ExtractedText         *string                  `json:"extracted_text,omitempty"`
	Summary               *string                  `json:"summary,omitempty"`
	DocumentTypeName      *string                  `json:"document_type_name,omitempty"`
	DocumentTypeCategory  *string                  `json:"document_type_category,omitempty"`
	UploadedBy            *string                  `json:"uploaded_by,omitempty"`
	UploadedAt            time.Time                `json:"uploaded_at"`
	ProcessedAt           *time.Time               `json:"processed_at,omitempty"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`
	IsDeleted             bool                     `json:"is_deleted"`
	DeletedAt             *time.Time               `json:"deleted_at,omitempty"`
}

// ProcessingDuration is the wall time of the last completed attempt.
func (d *Document) ProcessingDuration() (time.Duration, bool) {
	if d.ProcessingStartedAt == nil || d.ProcessingCompletedAt == nil {
		return 0, false
	}
	return d.ProcessingCompletedAt.Sub(*d.ProcessingStartedAt), true
}

// NewDocument carries the fields supplied at upload time.
type NewDocument struct {
	ID               uuid.UUID
	Filename         string
	OriginalFilename string
	FileExtension    string
	FileSize         int64
	ContentType      string
	ContentHash      string
	StoragePath      string
	Source           constants.DocumentSource
	UploadedBy       *string
	UploadedAt       time.Time
}

// StatusCount is one row of the per-type status summary.
type StatusCount struct {
	DocumentType         string
	Status               constants.DocumentStatus
	Count                int
	AvgProcessingSeconds float64
	FirstUploadedAt      *time.Time
	LastUploadedAt       *time.Time
}
