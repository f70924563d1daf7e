package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
)

var (
	// ErrRetrievalUnavailable wraps any failure to embed the query. No ranked
	// list is produced in that case.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrEmptyQuery           = errors.New("query is empty")
	ErrInvalidWeight        = errors.New("semantic weight must be in [0, 1]")
)

// HybridCutoff is the blended score a hybrid result must exceed.
const HybridCutoff = 0.5

const (
	DefaultLimit            = 10
	DefaultSemanticWeight   = 0.7
	DefaultThreshold        = 0.5
	DefaultRelatedThreshold = 0.8
)

// Embedder produces the query vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type Engine struct {
	embedder Embedder
	store    vectorstore.Store
	log      *slog.Logger
}

func NewEngine(store vectorstore.Store, embedder Embedder) *Engine {
	return &Engine{embedder: embedder, store: store, log: slog.Default()}
}

type Query struct {
	AssistantID uuid.UUID
	Text        string
	Limit       int
	Threshold   float64
	Types       []models.DocType
}

// Search ranks chunks by cosine similarity to the query, keeping those
// strictly above q.Threshold.
func (e *Engine) Search(ctx context.Context, q Query) ([]models.SearchResult, error) {
	q, err := normalize(q)
	if err != nil {
		return nil, err
	}
	vec, err := e.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	matches, err := e.store.QueryBySimilarity(ctx, vectorstore.SimilarityQuery{
		AssistantID: q.AssistantID,
		Vector:      vec,
		Threshold:   q.Threshold,
		Limit:       q.Limit,
		Types:       q.Types,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	results := make([]models.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = toResult(m)
		results[i].SemanticScore = m.Score
	}
	return results, nil
}

type HybridQuery struct {
	AssistantID    uuid.UUID
	Text           string
	Limit          int
	Types          []models.DocType
	SemanticWeight float64
}

// HybridSearch blends semantic and keyword relevance as
// semantic*w + keyword*(1-w) and keeps results scoring above HybridCutoff.
// Both signals are computed for every chunk. A chunk with no keyword match or
// no embedding contributes zero for that side.
func (e *Engine) HybridSearch(ctx context.Context, q HybridQuery) ([]models.SearchResult, error) {
	w := q.SemanticWeight
	if w < 0 || w > 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidWeight, w)
	}
	base, err := normalize(Query{AssistantID: q.AssistantID, Text: q.Text, Limit: q.Limit, Types: q.Types})
	if err != nil {
		return nil, err
	}
	vec, err := e.embedQuery(ctx, base.Text)
	if err != nil {
		return nil, err
	}

	matches, err := e.store.QueryHybrid(ctx, vectorstore.HybridQuery{
		AssistantID:    base.AssistantID,
		Vector:         vec,
		Text:           base.Text,
		SemanticWeight: w,
		Cutoff:         HybridCutoff,
		Limit:          base.Limit,
		Types:          base.Types,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	results := make([]models.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = toResult(m)
		results[i].SemanticScore = m.SemanticScore
		results[i].KeywordScore = m.KeywordScore
	}
	return results, nil
}

// Related returns the nearest neighbours of an existing chunk using its
// stored vector. The chunk itself is never part of the result. A chunk that
// was stored without an embedding has no neighbours.
func (e *Engine) Related(ctx context.Context, assistantID, chunkID uuid.UUID, limit int, threshold float64) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	chunk, err := e.store.GetChunk(ctx, assistantID, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load chunk: %w", err)
	}
	if len(chunk.Embedding) == 0 {
		e.log.Debug("related lookup on unembedded chunk", "chunk_id", chunkID)
		return []models.SearchResult{}, nil
	}

	matches, err := e.store.QueryBySimilarity(ctx, vectorstore.SimilarityQuery{
		AssistantID:    assistantID,
		Vector:         chunk.Embedding,
		Threshold:      threshold,
		Limit:          limit,
		ExcludeChunkID: chunkID,
	})
	if err != nil {
		return nil, fmt.Errorf("related search: %w", err)
	}

	results := make([]models.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = toResult(m)
		results[i].SemanticScore = m.Score
	}
	return results, nil
}

func (e *Engine) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedOne(ctx, text)
	if err != nil {
		e.log.Error("query embedding failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}
	return vec, nil
}

func normalize(q Query) (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return q, ErrEmptyQuery
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	return q, nil
}

func toResult(m vectorstore.Match) models.SearchResult {
	return models.SearchResult{
		ChunkID:      m.Chunk.ID,
		DocumentID:   m.Chunk.DocumentID,
		DocumentName: m.DocumentName,
		DocumentType: m.DocumentType,
		ChunkIndex:   m.Chunk.ChunkIndex,
		Content:      m.Chunk.Content,
		Score:        m.Score,
		SourceURL:    m.SourceURL,
	}
}
