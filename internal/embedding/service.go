package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/assistantkb/internal/llm"
)

var ErrAllModelsUnavailable = errors.New("all embedding models unavailable")

// FallbackError is returned when every configured model reported itself
// unavailable. It lists each model tried with its failure.
type FallbackError struct {
	Models []string
	Errs   []error
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Models))
	for i, m := range e.Models {
		parts[i] = fmt.Sprintf("%s: %v", m, e.Errs[i])
	}
	return fmt.Sprintf("%v (tried %s)", ErrAllModelsUnavailable, strings.Join(parts, "; "))
}

func (e *FallbackError) Is(target error) bool { return target == ErrAllModelsUnavailable }

func (e *FallbackError) Unwrap() []error { return e.Errs }

// Service turns text into vectors using an ordered list of models. A model
// is skipped only when the provider reports it unavailable; any other failure
// ends the call.
type Service struct {
	provider llm.EmbeddingProvider
	models   []string
	log      *slog.Logger
}

func NewService(p llm.EmbeddingProvider, models []string) *Service {
	if len(models) == 0 {
		models = []string{"text-embedding-3-small"}
	}
	return &Service{provider: p, models: models, log: slog.Default()}
}

func (s *Service) Models() []string {
	return append([]string(nil), s.models...)
}

// Embed returns one vector per text, in order. All vectors of one call come
// from the same model.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	fb := &FallbackError{}
	for _, model := range s.models {
		resp, err := s.provider.CreateEmbeddings(ctx, llm.EmbeddingRequest{Model: model, Input: texts})
		if err == nil {
			if len(resp.Embeddings) != len(texts) {
				return nil, fmt.Errorf("embed with %s: got %d vectors for %d texts", model, len(resp.Embeddings), len(texts))
			}
			if len(fb.Models) > 0 {
				s.log.Info("embedding served by fallback model", "model", model, "skipped", fb.Models)
			}
			return resp.Embeddings, nil
		}
		if !errors.Is(err, llm.ErrModelUnavailable) {
			return nil, fmt.Errorf("embed with %s: %w", model, err)
		}
		s.log.Warn("embedding model unavailable, trying next", "model", model, "error", err)
		fb.Models = append(fb.Models, model)
		fb.Errs = append(fb.Errs, err)
	}
	return nil, fb
}

func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}
