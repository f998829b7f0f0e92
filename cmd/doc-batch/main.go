package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/document-processor/constants"
	"github.com/joseph-ayodele/document-processor/internal/bootstrap"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/core"
	"github.com/joseph-ayodele/document-processor/internal/export"
	"github.com/joseph-ayodele/document-processor/internal/ingest"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory SQLite store instead of STORE_BACKEND")
		dir     = flag.String("dir", "", "directory of documents to process (required)")
		out     = flag.String("out", "", "output XLSX report path (defaults to <dir>/../documents.xlsx)")
		workers = flag.Int("workers", 0, "max concurrent documents (defaults to PROCESSING_MAX_CONCURRENCY)")
		hidden  = flag.Bool("hidden", false, "include hidden files and directories")
		wait    = flag.Duration("wait", 30*time.Minute, "give up waiting for documents after this long")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "documents.xlsx")
	}

	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(os.Stdout, cfg.LogLevel, true)
	if *inmem {
		cfg.Database.Backend = common.StoreSQLite
		cfg.Database.SQLitePath = ":memory:"
	}
	if *workers > 0 {
		cfg.Processing.MaxConcurrency = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to open document store", "error", err)
	}
	defer store.Close()

	extractor, closeExtractor, err := bootstrap.NewExtractor(ctx, cfg.Extract, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build content extractor", "error", err)
	}
	defer closeExtractor()

	summarizer, closeSummarizer, err := bootstrap.NewSummarizer(ctx, cfg.LLM, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build ai processor", "error", err)
	}
	defer closeSummarizer()

	// Ingest
	started := time.Now().UTC()
	ingestor := ingest.NewFSIngestor(store, logger)
	ingestor.UploadedBy = "doc-batch"
	results, stats, err := ingestor.IngestDirectory(ctx, *dir, !*hidden)
	if err != nil {
		bootstrap.Fatal(logger, "failed to ingest directory", "dir", *dir, "error", err)
	}
	var ids []uuid.UUID
	for _, r := range results {
		if r.Err == "" {
			ids = append(ids, r.DocumentID)
		}
	}
	logger.Info("ingestion complete",
		"documents", len(ids),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed)

	// Process: the startup sweep admits every PENDING document and the
	// sweeper keeps admitting whatever did not fit in the queue.
	sched := core.NewScheduler(store, extractor, summarizer, logger, core.SchedulerConfig{
		Options: core.Options{
			MaxRetries:     cfg.Processing.MaxRetries,
			ExtractTimeout: cfg.Processing.ExtractTimeout,
			AITimeout:      cfg.Processing.AITimeout,
			StuckTimeout:   cfg.Processing.StuckTimeout,
		},
		MaxConcurrency: cfg.Processing.MaxConcurrency,
		QueueSize:      cfg.Processing.QueueSize,
	})
	if err := sched.Start(ctx); err != nil {
		bootstrap.Fatal(logger, "failed to start scheduler", "error", err)
	}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go func() { _ = sched.Service.RunSweeper(sweepCtx, 2*time.Second) }()

	processed, failed, pending := waitForDocuments(ctx, store, ids, *wait)
	stopSweeper()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduler stop timed out", "error", err)
	}

	// Report
	xlsx, err := export.NewService(store, logger).ReportXLSX(context.WithoutCancel(ctx), time.Time{})
	if err != nil {
		bootstrap.Fatal(logger, "failed to build report", "error", err)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		bootstrap.Fatal(logger, "failed to write report", "path", *out, "error", err)
	}

	logger.Info("batch processing complete",
		"documents", len(ids),
		"processed", processed,
		"failed", failed,
		"unfinished", pending,
		"elapsed", time.Since(started).Round(time.Millisecond).String(),
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents: %d\n", len(ids))
	fmt.Printf("- Processed: %d\n", processed)
	fmt.Printf("- Failed: %d\n", failed)
	if pending > 0 {
		fmt.Printf("- Unfinished: %d\n", pending)
	}
	fmt.Printf("- Output: %s\n", *out)
}

// waitForDocuments polls until every document is terminal, ctx ends or the
// deadline passes.
func waitForDocuments(ctx context.Context, store core.Store, ids []uuid.UUID, limit time.Duration) (processed, failed, pending int) {
	deadline := time.Now().Add(limit)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		processed, failed, pending = 0, 0, 0
		for _, id := range ids {
			doc, err := store.GetByID(ctx, id)
			if err != nil {
				pending++
				continue
			}
			switch doc.Status {
			case constants.StatusProcessed:
				processed++
			case constants.StatusFailed:
				failed++
			default:
				pending++
			}
		}
		if pending == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
