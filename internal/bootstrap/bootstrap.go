// Package bootstrap turns configuration into the concrete store, extractor
// and summarizer the binaries run with.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/extract"
	"github.com/joseph-ayodele/document-processor/internal/llm"
	"github.com/joseph-ayodele/document-processor/internal/llm/openai"
	"github.com/joseph-ayodele/document-processor/internal/llm/vertex"
	"github.com/joseph-ayodele/document-processor/internal/repository"
)

// NewLogger returns a JSON logger for daemons and a text logger for tools.
func NewLogger(w io.Writer, level slog.Level, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Store is an opened document store and the means to release it.
type Store struct {
	repository.DocumentRepository
	Backend string
	closers []func()
}

func (s *Store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStore connects the configured backend and, for SQL backends, applies
// the schema.
func OpenStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	st := &Store{Backend: cfg.Backend}
	switch cfg.Backend {
	case common.StorePostgres:
		drv, pool, err := repository.Open(ctx, repository.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { repository.Close(drv, pool, logger) })
		if err := repository.HealthCheck(ctx, drv, 5*time.Second, logger); err != nil {
			st.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := repository.Migrate(ctx, drv); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st.DocumentRepository = repository.NewDocumentRepository(drv, logger)

	case common.StoreSQLite:
		drv, err := repository.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { repository.Close(drv, nil, logger) })
		if err := repository.Migrate(ctx, drv); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st.DocumentRepository = repository.NewDocumentRepository(drv, logger)

	case common.StoreFirestore:
		client, err := repository.NewFirestoreClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() {
			if err := client.Close(); err != nil {
				logger.Error("failed to close firestore client", "error", err)
			}
		})
		st.DocumentRepository = repository.NewFirestoreRepository(client, cfg.FirestoreCollection, logger)

	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unknown store backend "+cfg.Backend, common.ErrInvalidInput)
	}
	logger.Info("document store ready", "backend", cfg.Backend)
	return st, nil
}

// NewExtractor builds the content extractor. gs:// references are served
// only when GCS is enabled; the returned func releases the GCS client.
func NewExtractor(ctx context.Context, cfg common.ExtractConfig, logger *slog.Logger) (*extract.Service, func(), error) {
	src := extract.MultiSource{}
	cleanup := func() {}
	if cfg.GCSEnabled {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		src.GCS = extract.NewGCSSource(client, cfg.TempDir, logger)
		cleanup = func() { _ = client.Close() }
	}
	svc := extract.NewService(extract.Config{
		Pdftotext: cfg.Pdftotext,
		Tesseract: cfg.Tesseract,
	}, src, extract.ExecRunner{Logger: logger}, logger)
	return svc, cleanup, nil
}

// NewSummarizer builds the configured AI processor.
func NewSummarizer(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.Summarizer, func(), error) {
	switch cfg.Provider {
	case common.AIProviderOpenAI:
		return openai.NewClient(openai.Config{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Model:         cfg.Model,
			Temperature:   cfg.Temperature,
			Timeout:       cfg.Timeout,
			MaxInputChars: cfg.MaxInputChars,
		}, logger), func() {}, nil
	case common.AIProviderVertex:
		c, err := vertex.NewClient(ctx, vertex.Config{
			Project:       cfg.VertexProject,
			Region:        cfg.VertexRegion,
			Model:         cfg.VertexModel,
			Temperature:   cfg.Temperature,
			MaxInputChars: cfg.MaxInputChars,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	default:
		return nil, nil, common.NewAppError("CONFIG_ERROR", "unknown AI provider "+cfg.Provider, common.ErrInvalidInput)
	}
}

// Fatal logs and exits; for use in main only.
func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(1)
}
