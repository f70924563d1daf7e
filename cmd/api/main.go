package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/assistantkb/internal/api"
	"github.com/nikhilbhutani/assistantkb/internal/api/handlers"
	"github.com/nikhilbhutani/assistantkb/internal/cache"
	"github.com/nikhilbhutani/assistantkb/internal/config"
	"github.com/nikhilbhutani/assistantkb/internal/database"
	"github.com/nikhilbhutani/assistantkb/internal/embedding"
	"github.com/nikhilbhutani/assistantkb/internal/llm"
	"github.com/nikhilbhutani/assistantkb/internal/queue"
	"github.com/nikhilbhutani/assistantkb/internal/retrieval"
	"github.com/nikhilbhutani/assistantkb/internal/source"
	"github.com/nikhilbhutani/assistantkb/internal/storage"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
	"github.com/nikhilbhutani/assistantkb/migrations"
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

	if err := database.RunMigrations(ctx, db, migrations.FS); err != nil {
		slog.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	locks := cache.NewCache(rdb)
	if err := locks.Ping(ctx); err != nil {
		slog.Warn("redis unavailable at startup", "error", err)
	}

	provider, err := llm.NewGateway(cfg.Embedding)
	if err != nil {
		slog.Error("embedding provider", "error", err)
		os.Exit(1)
	}
	embedder := embedding.NewService(provider, cfg.Embedding.Models)

	queueClient := queue.NewClient(cfg.Redis, cfg.Crawl.Timeout)
	defer queueClient.Close()

	store := vectorstore.NewPgVectorStore(db)
	files := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{"database": db, "redis": locks})
	sourceH := handlers.NewSourceHandler(source.NewService(db), store, locks, queueClient, files, cfg.Crawl.Timeout+10*time.Minute)
	searchH := handlers.NewSearchHandler(retrieval.NewEngine(store, embedder), cfg.Search)

	router := api.NewRouter(cfg, health, sourceH, searchH)
	stopCleanup := make(chan struct{})
	go router.Limiter().Cleanup(time.Minute, stopCleanup)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "embedding_provider", provider.Name(), "models", cfg.Embedding.Models)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	close(stopCleanup)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
