package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"documind/cache"
	"documind/chat"
	"documind/chunker"
	"documind/config"
	"documind/database"
	"documind/dedup"
	"documind/extract"
	"documind/imaging"
	"documind/llmclient"
	"documind/pipeline"
	"documind/queue"
	"documind/structure"
	"documind/vectorstore"
	"documind/web"
	"documind/workspace"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	store, err := database.NewPostgresStore(cfg.PostgresURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure database schema", zap.Error(err))
	}

	llm := llmclient.New(cfg, logger)
	vs := vectorstore.New(store.DB, llm.Embed, cfg.EmbeddingDimensions, cfg.ChunkMaxChars, logger)
	responseCache := cache.New(cfg.RedisAddr, cfg.RedisDB,
		cfg.CacheResponseTTL, cfg.CacheEmbeddingTTL, cfg.SimilarityThreshold, logger)

	ws := workspace.New(cfg.WorkspaceRoot)
	asr := extract.NewWhisperClient(cfg.WhisperAPIURL, cfg.WhisperModelSize, logger)
	downloader := extract.NewYtDlpDownloader(logger)
	registry := extract.NewRegistry(ws, asr, downloader, int(cfg.ScraperTimeout.Seconds()), logger)

	ocrPool := imaging.NewPool(imaging.NewHTTPEngine(cfg.OCRAPIURL, logger), cfg.OCRPoolSize)
	var arbiter *imaging.Arbiter
	vlm, err := imaging.NewVLMClient(cfg.VLMProvider, cfg.VLMModel, cfg.VLMAPIURL, cfg.VLMAPIKey, cfg.VLMTimeout, logger)
	if err != nil {
		logger.Warn("Vision model disabled", zap.Error(err))
		arbiter = imaging.NewArbiter(ocrPool, nil, cfg.OCRThreshold, logger)
	} else {
		arbiter = imaging.NewArbiter(ocrPool, vlm, cfg.OCRThreshold, logger)
	}

	agent := structure.NewAgent(llm, logger)
	ch := chunker.New(cfg.ChunkTokenSize, cfg.ChunkTokenOverlap, cfg.ChunkMaxChars)

	coll, err := vs.Collection(ctx, pipeline.DefaultCollection)
	if err != nil {
		logger.Fatal("Failed to open chunk collection", zap.Error(err))
	}
	deduper := dedup.New(store, coll, logger)
	pipe := pipeline.New(registry, arbiter, agent, ch, deduper, store, coll, logger)

	jobQueue := queue.New(cfg.RedisAddr, cfg.RedisDB, cfg.QueueName, logger)
	defer jobQueue.Close()
	worker := queue.NewWorker(jobQueue, pipe, cfg.WorkerConcurrency,
		cfg.WorkerSoftLimit, cfg.WorkerHardLimit, cfg.CallbackToken, logger)

	chatSvc := chat.New(llm, responseCache, vs, store,
		pipeline.DefaultCollection, cfg.MaxTurns, cfg.RAGResults, logger)

	webServer := web.NewServer(cfg, chatSvc, jobQueue, store, vs, responseCache, logger)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go worker.Run(ctx)

	logger.Info("Starting DocuMind server", zap.Int("port", cfg.WebPort))
	if err := webServer.Start(ctx); err != nil {
		logger.Error("Web server error", zap.Error(err))
		os.Exit(1)
	}
}
