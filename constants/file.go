package constants

import "strings"

// File formats understood by the content extractor.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
	TEXT  = "TEXT"
)

// FileTypes holds every supported format.
var FileTypes = []string{PDF, IMAGE, TEXT}

var extToFormat = map[string]string{
	"pdf":  PDF,
	"png":  IMAGE,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
	"txt":  TEXT,
	"md":   TEXT,
	"csv":  TEXT,
	"json": TEXT,
	"log":  TEXT,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToFormat returns the format for an extension, or "" if unsupported.
func MapExtToFormat(ext string) string {
	return extToFormat[NormalizeExt(ext)]
}

// IsAllowedExt reports whether documents with this extension can be processed.
func IsAllowedExt(ext string) bool {
	return MapExtToFormat(ext) != ""
}

// ContentTypeForExt is a best-effort MIME type used when recording uploads.
func ContentTypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tif", "tiff":
		return "image/tiff"
	case "json":
		return "application/json"
	case "csv":
		return "text/csv"
	case "md":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
