package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"docsieve/internal/batch"
	"docsieve/internal/config"
	"docsieve/internal/extract"
	"docsieve/internal/handler"
	"docsieve/internal/inference/gemini"
	"docsieve/internal/repository/postgres"
	"docsieve/internal/router"
	"docsieve/internal/service"
	s3storage "docsieve/internal/storage/s3"
	"docsieve/internal/structural"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize repositories
	recordRepo := postgres.NewExtractionRecordRepo(db)
	jobRepo := postgres.NewBatchJobRepo(db)

	// Initialize storage
	docStore, err := s3storage.NewDocumentStore(&cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}

	// Initialize the inference adapter (sync, file store, caches, batch API)
	inferenceSvc, err := gemini.NewService(ctx, &cfg.Inference)
	if err != nil {
		return fmt.Errorf("failed to initialize inference service: %w", err)
	}

	// Initialize the extraction core
	cacheManager := extract.NewCacheManager(inferenceSvc, cfg.Inference.Model)
	extractor := extract.NewClient(inferenceSvc, inferenceSvc, cacheManager, extract.DefaultRetryPolicy(), cfg.Inference.Model)
	structuralParser := structural.NewParser()

	// Initialize services
	extractionSvc := service.NewExtractionService(recordRepo, docStore, structuralParser, extractor, cfg.S3.Bucket)
	batchSvc := service.NewBatchService(jobRepo, recordRepo, docStore, inferenceSvc, inferenceSvc, cfg.S3.Bucket, cfg.Inference.Model)

	// Start the batch job sweep worker
	sweeper := batch.NewSweeper(jobRepo, inferenceSvc, inferenceSvc, batchSvc.Processors(), batch.SweeperConfig{
		Interval: time.Duration(cfg.Sweep.IntervalSecs) * time.Second,
	})
	go sweeper.Start(ctx)

	// Initialize handlers
	extractionH := handler.NewExtractionHandler(extractionSvc, cfg.S3.MaxFileSizeMB, cfg.Extraction.Concurrency)
	batchH := handler.NewBatchHandler(batchSvc, sweeper,
		time.Duration(cfg.Extraction.PollTimeoutSecs)*time.Second,
		time.Duration(cfg.Extraction.PollIntervalSecs)*time.Second)
	healthH := handler.NewHealthHandler(db)

	// Setup router
	r := router.Setup(extractionH, batchH, healthH, cfg.CORS.AllowedOrigins)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
