package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/assistantkb/internal/config"
)

type Client struct {
	client       *asynq.Client
	crawlTimeout time.Duration
}

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient returns a task client. Crawl tasks get crawlTimeout plus a margin
// for storing the results.
func NewClient(cfg config.RedisConfig, crawlTimeout time.Duration) *Client {
	return &Client{
		client:       asynq.NewClient(RedisOpt(cfg)),
		crawlTimeout: crawlTimeout,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueSourceCrawl(ctx context.Context, payload SourceCrawlPayload) error {
	task, err := NewTask(TypeSourceCrawl, payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, asynq.MaxRetry(2), asynq.Timeout(c.crawlTimeout+5*time.Minute))
}

func (c *Client) EnqueueDocumentIngest(ctx context.Context, payload DocumentIngestPayload) error {
	task, err := NewTask(TypeDocumentIngest, payload)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute))
}

func NewTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
