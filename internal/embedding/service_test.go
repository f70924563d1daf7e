package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/assistantkb/internal/llm"
)

type fakeProvider struct {
	failures map[string]error
	calls    []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateEmbeddings(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	f.calls = append(f.calls, req.Model)
	if err, ok := f.failures[req.Model]; ok {
		return nil, err
	}
	out := make([][]float32, len(req.Input))
	for i, text := range req.Input {
		out[i] = []float32{float32(len(text)), float32(len(req.Model))}
	}
	return &llm.EmbeddingResponse{Model: req.Model, Embeddings: out}, nil
}

func unavailable(model string) error {
	return &llm.ModelUnavailableError{Provider: "fake", Model: model, Err: errors.New("model deprecated")}
}

func TestEmbed_PrimaryModel(t *testing.T) {
	p := &fakeProvider{}
	s := NewService(p, []string{"primary", "fallback"})

	vecs, err := s.Embed(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 7}, {2, 7}}, vecs)
	assert.Equal(t, []string{"primary"}, p.calls)
}

func TestEmbed_FallsBackOnUnavailableModel(t *testing.T) {
	p := &fakeProvider{failures: map[string]error{"primary": unavailable("primary")}}
	s := NewService(p, []string{"primary", "fallback"})

	vecs, err := s.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 8}}, vecs)
	assert.Equal(t, []string{"primary", "fallback"}, p.calls)
}

func TestEmbed_OtherErrorsDoNotFallBack(t *testing.T) {
	boom := &llm.APIError{Provider: "fake", Model: "primary", StatusCode: 401, Message: "bad key"}
	p := &fakeProvider{failures: map[string]error{"primary": boom}}
	s := NewService(p, []string{"primary", "fallback"})

	_, err := s.Embed(context.Background(), []string{"abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrAllModelsUnavailable)
	assert.Equal(t, []string{"primary"}, p.calls)
}

func TestEmbed_AllModelsUnavailable(t *testing.T) {
	p := &fakeProvider{failures: map[string]error{
		"primary":  unavailable("primary"),
		"fallback": unavailable("fallback"),
	}}
	s := NewService(p, []string{"primary", "fallback"})

	_, err := s.Embed(context.Background(), []string{"abc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsUnavailable)
	assert.ErrorIs(t, err, llm.ErrModelUnavailable)

	var fb *FallbackError
	require.True(t, errors.As(err, &fb))
	assert.Equal(t, []string{"primary", "fallback"}, fb.Models)
	assert.Contains(t, err.Error(), "primary")
	assert.Contains(t, err.Error(), "fallback")
}

func TestEmbed_Empty(t *testing.T) {
	p := &fakeProvider{}
	vecs, err := NewService(p, nil).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
	assert.Empty(t, p.calls)
}

func TestEmbedOne(t *testing.T) {
	s := NewService(&fakeProvider{}, []string{"m"})
	vec, err := s.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, vec)
	assert.Equal(t, []string{"m"}, s.Models())
}
