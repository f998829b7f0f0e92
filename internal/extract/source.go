package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// Source makes a storage reference available as a local file.
// cleanup is never nil and must be called once the file is no longer needed.
type Source interface {
	Fetch(ctx context.Context, ref string) (localPath string, cleanup func(), err error)
}

func noop() {}

// LocalSource serves files from the local filesystem, optionally under a base directory.
type LocalSource struct {
	BaseDir string
}

func (s LocalSource) Fetch(_ context.Context, ref string) (string, func(), error) {
	p := ref
	if s.BaseDir != "" && !filepath.IsAbs(p) {
		p = filepath.Join(s.BaseDir, filepath.Clean("/"+p))
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", noop, err
	}
	if info.IsDir() {
		return "", noop, fmt.Errorf("%s is a directory", p)
	}
	return p, noop, nil
}

// GCSSource downloads gs://bucket/object references to a temp file.
type GCSSource struct {
	client  *storage.Client
	tempDir string
	logger  *slog.Logger
}

func NewGCSSource(client *storage.Client, tempDir string, logger *slog.Logger) *GCSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSSource{client: client, tempDir: tempDir, logger: logger}
}

// ParseGCSRef splits gs://bucket/object into its parts.
func ParseGCSRef(ref string) (bucket, object string, err error) {
	if !strings.HasPrefix(ref, gcsScheme) {
		return "", "", fmt.Errorf("not a gcs reference: %q", ref)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, gcsScheme), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gcs reference: %q", ref)
	}
	return bucket, object, nil
}

func (s *GCSSource) Fetch(ctx context.Context, ref string) (string, func(), error) {
	bucket, object, err := ParseGCSRef(ref)
	if err != nil {
		return "", noop, err
	}
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return "", noop, fmt.Errorf("%s: %w", ref, fs.ErrNotExist)
		}
		return "", noop, fmt.Errorf("open %s: %w", ref, err)
	}
	defer rc.Close()

	f, err := os.CreateTemp(s.tempDir, "dp-gcs-*"+path.Ext(object))
	if err != nil {
		return "", noop, err
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temp file", "path", f.Name(), "error", err)
		}
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, fmt.Errorf("download %s: %w", ref, err)
	}
	s.logger.Debug("downloaded object", "ref", ref, "bytes", n, "path", f.Name())
	return f.Name(), cleanup, nil
}

// MultiSource routes gs:// references to GCS and everything else to the local source.
type MultiSource struct {
	Local LocalSource
	GCS   Source // nil disables gs:// references
}

func (m MultiSource) Fetch(ctx context.Context, ref string) (string, func(), error) {
	if strings.HasPrefix(ref, gcsScheme) {
		if m.GCS == nil {
			return "", noop, fmt.Errorf("gcs references are disabled: %q", ref)
		}
		return m.GCS.Fetch(ctx, ref)
	}
	return m.Local.Fetch(ctx, ref)
}
