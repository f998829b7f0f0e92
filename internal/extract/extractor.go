package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/joseph-ayodele/document-processor/constants"
)

// Service is the content extractor: it resolves a storage reference and
// dispatches on the file extension.
type Service struct {
	source   Source
	registry map[string]FormatExtractor
	logger   *slog.Logger
}

// NewService wires the plain text, PDF and image extractors. A nil runner
// runs binaries on the host.
func NewService(cfg Config, source Source, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if source == nil {
		source = LocalSource{}
	}
	cfg.defaults()
	return &Service{
		source: source,
		registry: map[string]FormatExtractor{
			constants.TEXT:  PlainText{maxBytes: cfg.MaxTextBytes},
			constants.PDF:   PDF{cfg: cfg, runner: runner, logger: logger},
			constants.IMAGE: Image{cfg: cfg, runner: runner},
		},
		logger: logger,
	}
}

// Register replaces the extractor for a format.
func (s *Service) Register(format string, fe FormatExtractor) {
	s.registry[format] = fe
}

func (s *Service) Extract(ctx context.Context, ref string) (Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(path.Ext(strings.TrimPrefix(ref, gcsScheme)))
	format := constants.MapExtToFormat(ext)
	fe, ok := s.registry[format]
	if !ok {
		s.logger.Warn("unsupported extension", "ref", ref, "extension", ext)
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	local, cleanup, err := s.source.Fetch(ctx, ref)
	if err != nil {
		return Result{SourceType: format}, fmt.Errorf("fetch %s: %w", ref, err)
	}
	defer cleanup()

	s.logger.Debug("starting extraction", "ref", ref, "format", format)
	res, err := fe.ExtractFile(ctx, local)
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return res, ErrEmptyContent
	}
	s.logger.Debug("extraction finished",
		"ref", ref,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}
