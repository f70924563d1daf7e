package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/assistantkb/internal/cache"
	"github.com/nikhilbhutani/assistantkb/internal/config"
	"github.com/nikhilbhutani/assistantkb/internal/crawler"
	"github.com/nikhilbhutani/assistantkb/internal/database"
	"github.com/nikhilbhutani/assistantkb/internal/embedding"
	"github.com/nikhilbhutani/assistantkb/internal/ingest"
	"github.com/nikhilbhutani/assistantkb/internal/llm"
	"github.com/nikhilbhutani/assistantkb/internal/queue"
	"github.com/nikhilbhutani/assistantkb/internal/queue/workers"
	"github.com/nikhilbhutani/assistantkb/internal/source"
	"github.com/nikhilbhutani/assistantkb/internal/storage"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	provider, err := llm.NewGateway(cfg.Embedding)
	if err != nil {
		slog.Error("embedding provider", "error", err)
		os.Exit(1)
	}

	c := crawler.New(
		crawler.NewHTTPFetcher(crawler.HTTPFetcherConfig{
			Timeout:      cfg.Crawl.FetchTimeout,
			UserAgent:    cfg.Crawl.UserAgent,
			MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		}),
		crawler.WithRateLimit(cfg.Crawl.RatePerSec),
		crawler.WithFetchTimeout(cfg.Crawl.FetchTimeout),
	)

	orch := ingest.New(
		source.NewService(db),
		vectorstore.NewPgVectorStore(db),
		c,
		embedding.NewService(provider, cfg.Embedding.Models),
		ingest.Options{
			ChunkSize:             cfg.Chunking.Size,
			ChunkOverlap:          cfg.Chunking.Overlap,
			BatchSize:             cfg.Embedding.BatchSize,
			AllowUnembeddedChunks: cfg.Ingest.AllowUnembeddedChunks,
			MaxPages:              cfg.Crawl.MaxPages,
			MaxDepth:              cfg.Crawl.MaxDepth,
			CrawlTimeout:          cfg.Crawl.Timeout,
		},
	)

	files := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
	mux := queue.NewServeMux(
		workers.NewCrawlWorker(orch, cache.NewCache(rdb)),
		workers.NewDocumentWorker(orch, files),
	)

	srv := asynq.NewServer(queue.RedisOpt(cfg.Redis), asynq.Config{
		Concurrency: cfg.Server.WorkerConcurrency,
		Logger:      newAsynqLogger(logger),
	})

	slog.Info("starting worker", "concurrency", cfg.Server.WorkerConcurrency, "embedding_provider", provider.Name())
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
