package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joseph-ayodele/document-processor/internal/bootstrap"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/export"
)

func main() {
	var (
		out     = flag.String("out", "documents.xlsx", "output XLSX path")
		sinceIn = flag.String("since", "", "only documents uploaded on or after YYYY-MM-DD")
	)
	flag.Parse()

	var since time.Time
	if *sinceIn != "" {
		t, err := time.Parse("2006-01-02", *sinceIn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --since date, use YYYY-MM-DD: %v\n", err)
			os.Exit(1)
		}
		since = t
	}

	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(os.Stderr, cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to open document store", "error", err)
	}
	defer store.Close()

	xlsx, err := export.NewService(store, logger).ReportXLSX(ctx, since)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build report", "error", err)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		bootstrap.Fatal(logger, "failed to write report", "path", *out, "error", err)
	}
	fmt.Printf("report written to %s (%d bytes)\n", *out, len(xlsx))
}
