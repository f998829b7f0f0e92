package server

import (
	"time"

	"github.com/joseph-ayodele/document-processor/internal/entity"
)

// documentFields flattens a document into structpb/JSON friendly values.
// Extracted text is left out; it can be large.
func documentFields(d *entity.Document) map[string]any {
	out := map[string]any{
		"id":             d.ID.String(),
		"filename":       d.Filename,
		"file_extension": d.FileExtension,
		"file_size":      d.FileSize,
		"storage_path":   d.StoragePath,
		"source":         string(d.Source),
		"status":         string(d.Status),
		"retry_count":    d.RetryCount,
		"uploaded_at":    d.UploadedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":     d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	setString(out, "error_message", d.ErrorMessage)
	setString(out, "summary", d.Summary)
	setString(out, "document_type", d.DocumentTypeName)
	setString(out, "category", d.DocumentTypeCategory)
	setTime(out, "processing_started_at", d.ProcessingStartedAt)
	setTime(out, "processing_completed_at", d.ProcessingCompletedAt)
	setTime(out, "processed_at", d.ProcessedAt)
	if dur, ok := d.ProcessingDuration(); ok {
		out["processing_seconds"] = dur.Seconds()
	}
	return out
}

func setString(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}

func setTime(m map[string]any, key string, v *time.Time) {
	if v != nil {
		m[key] = v.UTC().Format(time.RFC3339Nano)
	}
}
