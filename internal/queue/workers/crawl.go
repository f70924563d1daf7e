package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/assistantkb/internal/cache"
	"github.com/nikhilbhutani/assistantkb/internal/crawler"
	"github.com/nikhilbhutani/assistantkb/internal/ingest"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/queue"
	"github.com/nikhilbhutani/assistantkb/internal/source"
)

type SourceCrawler interface {
	CrawlSource(ctx context.Context, sourceID uuid.UUID) (*models.CrawlSummary, error)
}

type Unlocker interface {
	Unlock(ctx context.Context, name, token string) error
}

type CrawlWorker struct {
	orch  SourceCrawler
	locks Unlocker
}

func NewCrawlWorker(orch SourceCrawler, locks Unlocker) *CrawlWorker {
	return &CrawlWorker{orch: orch, locks: locks}
}

func (w *CrawlWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.SourceCrawlPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	sourceID, err := uuid.Parse(payload.SourceID)
	if err != nil {
		return fmt.Errorf("parse source ID: %w: %w", err, asynq.SkipRetry)
	}

	slog.Info("crawling source", "source_id", sourceID)
	summary, err := w.orch.CrawlSource(ctx, sourceID)
	if permanent(err, source.ErrNotFound, ingest.ErrWrongSourceKind, crawler.ErrInvalidSeed) {
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if finalAttempt(ctx, err) && payload.LockToken != "" {
		if uerr := w.locks.Unlock(context.WithoutCancel(ctx), cache.SourceLock(payload.SourceID), payload.LockToken); uerr != nil {
			slog.Warn("failed to release source lock", "source_id", sourceID, "error", uerr)
		}
	}
	if err != nil {
		return fmt.Errorf("crawl source %s: %w", sourceID, err)
	}

	slog.Info("source crawled", "source_id", sourceID, "pages", summary.Pages, "documents", summary.Documents, "chunks", summary.Chunks)
	return nil
}

func permanent(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// finalAttempt reports whether asynq will not run the task again after this
// attempt.
func finalAttempt(ctx context.Context, err error) bool {
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retry, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return true
	}
	return retry >= maxRetry
}
