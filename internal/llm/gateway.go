package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/assistantkb/internal/config"
)

// gateway wraps a provider with retries for transient failures. Model
// availability errors and caller cancellation are returned immediately.
type gateway struct {
	provider   EmbeddingProvider
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// NewGateway builds the configured embedding provider and wraps it with
// retries.
func NewGateway(cfg config.EmbeddingConfig) (EmbeddingProvider, error) {
	var p EmbeddingProvider
	switch cfg.Provider {
	case "", "openai":
		if cfg.OpenAIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("provider %q not configured: OPENAI_API_KEY is empty", "openai")
		}
		p = NewOpenAIProviderWithBaseURL(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	case "ollama":
		p = NewOllamaProvider(cfg.OllamaURL)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return WithRetry(p, cfg.MaxRetries), nil
}

// WithRetry retries transient failures of p up to maxRetries times with
// quadratic backoff.
func WithRetry(p EmbeddingProvider, maxRetries int) EmbeddingProvider {
	return &gateway{
		provider:   p,
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		},
	}
}

func (g *gateway) Name() string { return g.provider.Name() }

func (g *gateway) CreateEmbeddings(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying embedding call", "provider", g.provider.Name(), "model", req.Model, "attempt", attempt)
		}

		resp, err := g.provider.CreateEmbeddings(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(ctx, err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", g.provider.Name(), lastErr)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrModelUnavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Transport-level failures.
	return true
}
