package constants

// DocumentStatus is the canonical lifecycle status stored on a document row.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    DocumentStatus = "PENDING"    // uploaded, not yet admitted
	StatusQueued     DocumentStatus = "QUEUED"     // admitted, waiting for a worker
	StatusProcessing DocumentStatus = "PROCESSING" // claimed by exactly one worker
	StatusProcessed  DocumentStatus = "PROCESSED"  // terminal success
	StatusFailed     DocumentStatus = "FAILED"     // last attempt failed
)

// AllStatuses lists statuses in lifecycle order.
var AllStatuses = []DocumentStatus{
	StatusPending,
	StatusQueued,
	StatusProcessing,
	StatusProcessed,
	StatusFailed,
}

// ParseStatus maps a stored string back to a DocumentStatus.
func ParseStatus(s string) (DocumentStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTransient reports whether a document in this status is still expected to move.
func (s DocumentStatus) IsTransient() bool {
	return s == StatusPending || s == StatusQueued || s == StatusProcessing
}

// DocumentSource records where the uploaded bytes live.
type DocumentSource string

const (
	SourceLocalUpload DocumentSource = "LOCAL_UPLOAD"
	SourceGCS         DocumentSource = "GCS"
	SourceFileShare   DocumentSource = "FILE_SHARE"
)
