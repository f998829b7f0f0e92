package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joseph-ayodele/document-processor/internal/bootstrap"
	"github.com/joseph-ayodele/document-processor/internal/common"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "extraction timeout")
	summarize := flag.Bool("summarize", false, "also run the configured AI processor on the text")
	flag.Parse()

	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(os.Stderr, cfg.LogLevel, true)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "extracttext [-summarize] <path|gs://bucket/object>")
		os.Exit(2)
	}
	ref := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	extractor, closeExtractor, err := bootstrap.NewExtractor(ctx, cfg.Extract, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build content extractor", "error", err)
	}
	defer closeExtractor()

	res, err := extractor.Extract(ctx, ref)
	if err != nil {
		bootstrap.Fatal(logger, "extraction failed", "ref", ref, "error", err)
	}
	logger.Info("extracted",
		"ref", ref,
		"source_type", res.SourceType,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
		"warnings", res.Warnings)
	fmt.Println(res.Text)

	if !*summarize {
		return
	}
	summarizer, closeSummarizer, err := bootstrap.NewSummarizer(ctx, cfg.LLM, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build ai processor", "error", err)
	}
	defer closeSummarizer()
	s, err := summarizer.Summarize(ctx, res.Text)
	if err != nil {
		bootstrap.Fatal(logger, "summarize failed", "error", err)
	}
	fmt.Printf("\n--- summary (%s / %s)\n%s\n", s.DocumentType, s.Category, s.Text)
}
