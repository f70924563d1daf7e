package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, handler func(w http.ResponseWriter, model string, input []string)) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		handler(w, body.Model, body.Input)
	}))
	t.Cleanup(srv.Close)
	return NewOpenAIProviderWithBaseURL("test-key", srv.URL+"/v1")
}

func writeOpenAIError(w http.ResponseWriter, status int, code, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "invalid_request_error", "code": code},
	})
}

func TestOpenAIProvider_Embeddings(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, model string, input []string) {
		data := make([]map[string]any, len(input))
		// Returned out of order; the provider restores input order.
		for i := range input {
			j := len(input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float32{float32(j), 1}}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 10, "total_tokens": 10},
		})
	})

	resp, err := p.CreateEmbeddings(context.Background(), EmbeddingRequest{Model: "text-embedding-3-small", Input: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, resp.Embeddings)
	assert.Equal(t, 10, resp.Tokens)
	assert.InDelta(t, 0.0000002, resp.CostUSD, 1e-12)
}

func TestOpenAIProvider_ModelUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		msg    string
	}{
		{"not found", http.StatusNotFound, "", "The model `x` does not exist"},
		{"model_not_found code", http.StatusBadRequest, "model_not_found", "model retired"},
		{"forbidden model", http.StatusForbidden, "", "Project does not have access to model x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := openAIServer(t, func(w http.ResponseWriter, _ string, _ []string) {
				writeOpenAIError(w, tt.status, tt.code, tt.msg)
			})
			_, err := p.CreateEmbeddings(context.Background(), EmbeddingRequest{Model: "x", Input: []string{"a"}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrModelUnavailable)

			var mu *ModelUnavailableError
			require.True(t, errors.As(err, &mu))
			assert.Equal(t, "x", mu.Model)
		})
	}
}

func TestOpenAIProvider_OtherErrorsAreNotAvailability(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, _ string, _ []string) {
		writeOpenAIError(w, http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided")
	})
	_, err := p.CreateEmbeddings(context.Background(), EmbeddingRequest{Model: "text-embedding-3-small", Input: []string{"a"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelUnavailable)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Temporary())
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var body ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body.Model {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model \"missing\" not found, try pulling it first"}`))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"runner crashed"}`))
		default:
			vecs := make([][]float32, len(body.Input))
			for i := range vecs {
				vecs[i] = []float32{0.5, 0.5}
			}
			json.NewEncoder(w).Encode(ollamaEmbedResp{Model: body.Model, Embeddings: vecs, PromptEvalCount: 4})
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL + "/")
	ctx := context.Background()

	resp, err := p.CreateEmbeddings(ctx, EmbeddingRequest{Model: "nomic-embed-text", Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Len(t, resp.Embeddings, 2)
	assert.Equal(t, 4, resp.Tokens)

	_, err = p.CreateEmbeddings(ctx, EmbeddingRequest{Model: "missing", Input: []string{"a"}})
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = p.CreateEmbeddings(ctx, EmbeddingRequest{Model: "broken", Input: []string{"a"}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

type scriptedProvider struct {
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) CreateEmbeddings(_ context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return &EmbeddingResponse{Model: req.Model, Embeddings: [][]float32{{1}}}, nil
}

func noBackoff(p EmbeddingProvider, retries int) EmbeddingProvider {
	g := WithRetry(p, retries).(*gateway)
	g.backoff = func(int) time.Duration { return 0 }
	return g
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()
	req := EmbeddingRequest{Model: "m", Input: []string{"x"}}

	t.Run("transient then success", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{&APIError{StatusCode: 503}, errors.New("connection reset")}}
		_, err := noBackoff(p, 3).CreateEmbeddings(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("model unavailable is not retried", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{&ModelUnavailableError{Provider: "scripted", Model: "m", Err: errors.New("gone")}}}
		_, err := noBackoff(p, 3).CreateEmbeddings(ctx, req)
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("client error is not retried", func(t *testing.T) {
		p := &scriptedProvider{errs: []error{&APIError{StatusCode: 400}}}
		_, err := noBackoff(p, 3).CreateEmbeddings(ctx, req)
		assert.Error(t, err)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		fail := &APIError{StatusCode: 429}
		p := &scriptedProvider{errs: []error{fail, fail, fail}}
		_, err := noBackoff(p, 2).CreateEmbeddings(ctx, req)
		assert.ErrorIs(t, err, fail)
		assert.Equal(t, 3, p.calls)
	})
}
