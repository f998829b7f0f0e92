package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/document-processor/internal/bootstrap"
	"github.com/joseph-ayodele/document-processor/internal/common"
	"github.com/joseph-ayodele/document-processor/internal/core"
	"github.com/joseph-ayodele/document-processor/internal/ingest"
	"github.com/joseph-ayodele/document-processor/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(os.Stdout, cfg.LogLevel, true)

	if err := cfg.Validate(); err != nil {
		bootstrap.Fatal(logger, "invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to open document store", "backend", cfg.Database.Backend, "error", err)
	}
	defer store.Close()

	extractor, closeExtractor, err := bootstrap.NewExtractor(ctx, cfg.Extract, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build content extractor", "error", err)
	}
	defer closeExtractor()

	summarizer, closeSummarizer, err := bootstrap.NewSummarizer(ctx, cfg.LLM, logger)
	if err != nil {
		bootstrap.Fatal(logger, "failed to build ai processor", "provider", cfg.LLM.Provider, "error", err)
	}
	defer closeSummarizer()

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

	// gRPC
	grpcServer := grpc.NewServer()
	server.RegisterDocumentServiceServer(grpcServer, server.NewDocumentServer(sched.Service, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		bootstrap.Fatal(logger, "failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
	}

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewRouter(server.NewHTTPHandler(sched.Service, store, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		server.WatchHealth(gctx, healthServer, store, 10*time.Second, logger)
		return nil
	})
	g.Go(func() error {
		return sched.Service.RunSweeper(gctx, cfg.Processing.SweepInterval)
	})
	if cfg.Ingest.WatchDir != "" {
		events, _, err := ingest.StartWatcher(gctx, ingest.WatchConfig{
			Roots:       []string{cfg.Ingest.WatchDir},
			InitialScan: true,
			Debounce:    cfg.Ingest.Debounce,
		}, logger)
		if err != nil {
			bootstrap.Fatal(logger, "failed to watch inbox", "dir", cfg.Ingest.WatchDir, "error", err)
		}
		ingestor := ingest.NewFSIngestor(store, logger)
		ingestor.UploadedBy = cfg.Ingest.UploadedBy
		g.Go(func() error {
			return ingest.RunInbox(gctx, events, ingestor, sched.Service, logger)
		})
		logger.Info("watching inbox", "dir", cfg.Ingest.WatchDir)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler stop timed out, in-flight documents are left for the stuck sweep", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("document processor stopped with error", "error", err)
		store.Close()
		os.Exit(1)
	}
	logger.Info("document processor stopped")
}
