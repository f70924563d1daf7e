package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrModelUnavailable marks a failure caused by the requested model not being
// served (unknown, deprecated, or not enabled for the key). Callers may try a
// different model; any other error means the request itself failed.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// EmbeddingProvider abstracts an embedding backend (OpenAI, Ollama).
type EmbeddingProvider interface {
	CreateEmbeddings(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	Name() string
}

// EmbeddingRequest is the input for embedding generation.
type EmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingResponse holds one vector per input, in input order.
type EmbeddingResponse struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Tokens     int         `json:"tokens"`
	CostUSD    float64     `json:"cost_usd"`
}

// ModelUnavailableError is returned by providers when the backend rejects the
// model. It matches ErrModelUnavailable under errors.Is.
type ModelUnavailableError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("%s: model %q unavailable: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP response from a provider that is not a model
// availability problem.
type APIError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: embedding request for %q failed with status %d: %s", e.Provider, e.Model, e.StatusCode, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
