package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/assistantkb/internal/embedding"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

type corpus struct {
	store     *vectorstore.MemoryStore
	assistant uuid.UUID
	chunks    []models.DocumentChunk
}

type seedChunk struct {
	typ     models.DocType
	content string
	vector  []float32
}

func newCorpus(t *testing.T, seeds []seedChunk) *corpus {
	t.Helper()
	ctx := context.Background()
	c := &corpus{store: vectorstore.NewMemoryStore(), assistant: uuid.New()}
	source := uuid.New()

	docs := map[models.DocType]*models.Document{}
	for i, s := range seeds {
		doc, ok := docs[s.typ]
		if !ok {
			doc = &models.Document{AssistantID: c.assistant, SourceID: source, Name: string(s.typ), Type: s.typ, Status: models.DocStatusCompleted}
			require.NoError(t, c.store.SaveDocument(ctx, doc))
			docs[s.typ] = doc
		}
		id, err := uuid.NewV7()
		require.NoError(t, err)
		chunk := models.DocumentChunk{
			ID:          id,
			DocumentID:  doc.ID,
			AssistantID: c.assistant,
			ChunkIndex:  i,
			Content:     s.content,
			Embedding:   s.vector,
		}
		require.NoError(t, c.store.SaveChunks(ctx, []models.DocumentChunk{chunk}))
		c.chunks = append(c.chunks, chunk)
	}
	return c
}

func supportCorpus(t *testing.T) *corpus {
	return newCorpus(t, []seedChunk{
		{models.DocTypeURL, "Reset your password from the account settings page.", []float32{1, 0, 0}},
		{models.DocTypeURL, "Password resets expire after one hour.", []float32{0.9, 0.1, 0}},
		{models.DocTypePDF, "Invoices are emailed at the start of each month.", []float32{0, 1, 0}},
		{models.DocTypePDF, "Billing questions go to the finance team.", []float32{0.2, 0.9, 0}},
		{models.DocTypeTXT, "Password policy: every password needs twelve characters.", nil},
	})
}

func ids(results []models.SearchResult) []uuid.UUID {
	out := make([]uuid.UUID, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"reset password": {1, 0, 0}}}
	e := NewEngine(c.store, emb)

	results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "reset password", Limit: 5, Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, c.chunks[0].ID, results[0].ChunkID)
	assert.Equal(t, c.chunks[1].ID, results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, results[0].Score, results[0].SemanticScore)
	assert.Equal(t, models.DocTypeURL, results[0].DocumentType)
	assert.Equal(t, 1, emb.calls)
}

func TestSearch_NothingAboveThreshold(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"weather": {0.5, 0.5, 0.7}}}
	e := NewEngine(c.store, emb)

	results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "weather", Limit: 5, Threshold: 0.9})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_ThresholdMonotonic(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {0.6, 0.6, 0.1}}}
	e := NewEngine(c.store, emb)

	prev := -1
	for _, th := range []float64{0.95, 0.9, 0.7, 0.5, 0.2, 0, -1} {
		results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "q", Limit: 10, Threshold: th})
		require.NoError(t, err)
		if prev >= 0 {
			assert.GreaterOrEqual(t, len(results), prev, "threshold %g", th)
		}
		prev = len(results)
	}
}

func TestSearch_TypeFilter(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 1, 0}}}
	e := NewEngine(c.store, emb)

	results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "q", Limit: 10, Threshold: 0.1, Types: []models.DocType{models.DocTypePDF}})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, models.DocTypePDF, r.DocumentType)
	}
}

func TestSearch_TiesFollowIngestionOrder(t *testing.T) {
	c := newCorpus(t, []seedChunk{
		{models.DocTypeTXT, "first", []float32{1, 0}},
		{models.DocTypeTXT, "second", []float32{1, 0}},
		{models.DocTypeTXT, "third", []float32{1, 0}},
	})
	e := NewEngine(c.store, &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0}}})

	for range 3 {
		results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "q", Limit: 3, Threshold: 0.5})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{c.chunks[0].ID, c.chunks[1].ID, c.chunks[2].ID}, ids(results))
	}
}

func TestSearch_EmbeddingFailureAborts(t *testing.T) {
	c := supportCorpus(t)
	cause := &embedding.FallbackError{Models: []string{"a"}, Errs: []error{errors.New("gone")}}
	e := NewEngine(c.store, &fakeEmbedder{err: cause})

	results, err := e.Search(context.Background(), Query{AssistantID: c.assistant, Text: "q", Limit: 5, Threshold: 0.5})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, embedding.ErrAllModelsUnavailable)

	_, err = e.HybridSearch(context.Background(), HybridQuery{AssistantID: c.assistant, Text: "q", Limit: 5, SemanticWeight: 0.7})
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestSearch_EmptyQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	e := NewEngine(vectorstore.NewMemoryStore(), emb)
	_, err := e.Search(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, emb.calls)
}

func TestHybridSearch_FullSemanticWeightEqualsSemanticSearch(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"password reset": {0.8, 0.3, 0.1}}}
	e := NewEngine(c.store, emb)
	ctx := context.Background()

	semantic, err := e.Search(ctx, Query{AssistantID: c.assistant, Text: "password reset", Limit: 5, Threshold: HybridCutoff})
	require.NoError(t, err)
	hybrid, err := e.HybridSearch(ctx, HybridQuery{AssistantID: c.assistant, Text: "password reset", Limit: 5, SemanticWeight: 1})
	require.NoError(t, err)

	require.NotEmpty(t, semantic)
	assert.Equal(t, semantic, hybrid)
}

func TestHybridSearch_ZeroSemanticWeightEqualsKeywordRanking(t *testing.T) {
	c := supportCorpus(t)
	e := NewEngine(c.store, &fakeEmbedder{})
	ctx := context.Background()

	keyword, err := c.store.QueryByKeyword(ctx, vectorstore.KeywordQuery{AssistantID: c.assistant, Text: "password", Limit: 50})
	require.NoError(t, err)
	var want []uuid.UUID
	for _, m := range keyword {
		if m.Score > HybridCutoff {
			want = append(want, m.Chunk.ID)
		}
	}
	require.NotEmpty(t, want)

	hybrid, err := e.HybridSearch(ctx, HybridQuery{AssistantID: c.assistant, Text: "password", Limit: 10, SemanticWeight: 0})
	require.NoError(t, err)
	assert.Equal(t, want, ids(hybrid))
	for i, r := range hybrid {
		assert.Equal(t, keyword[i].Score, r.Score)
		assert.Zero(t, r.SemanticScore)
	}
}

func TestHybridSearch_BlendsBothSignals(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"password": {1, 0, 0}}}
	e := NewEngine(c.store, emb)

	results, err := e.HybridSearch(context.Background(), HybridQuery{AssistantID: c.assistant, Text: "password", Limit: 10, SemanticWeight: 0.7})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.Greater(t, r.Score, HybridCutoff)
		assert.InDelta(t, r.SemanticScore*0.7+r.KeywordScore*0.3, r.Score, 1e-12)
	}
	// The top chunk matches on both signals.
	assert.Equal(t, c.chunks[0].ID, results[0].ChunkID)
	assert.Greater(t, results[0].KeywordScore, 0.0)
	// Unembedded chunks cannot reach the cutoff on keyword relevance alone at w=0.7.
	assert.NotContains(t, ids(results), c.chunks[4].ID)
}

func TestHybridSearch_SemanticOnlyMatchesQualify(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{"monthly statement": {0, 1, 0}}}
	e := NewEngine(c.store, emb)

	results, err := e.HybridSearch(context.Background(), HybridQuery{AssistantID: c.assistant, Text: "monthly statement", Limit: 10, SemanticWeight: 0.7})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, c.chunks[2].ID, results[0].ChunkID)
	assert.Zero(t, results[0].KeywordScore)
}

func TestHybridSearch_ScoresEveryKeywordMatch(t *testing.T) {
	seeds := make([]seedChunk, 0, 61)
	for range 60 {
		seeds = append(seeds, seedChunk{models.DocTypeURL, "alpha beta alpha beta", []float32{0, 1, 0}})
	}
	seeds = append(seeds, seedChunk{models.DocTypeURL, "alpha gamma", []float32{1, 0, 0}})
	c := newCorpus(t, seeds)
	target := c.chunks[60]

	emb := &fakeEmbedder{vectors: map[string][]float32{"alpha beta": {1, 0, 0}}}
	e := NewEngine(c.store, emb)

	results, err := e.HybridSearch(context.Background(), HybridQuery{AssistantID: c.assistant, Text: "alpha beta", Limit: 1, SemanticWeight: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, target.ID, results[0].ChunkID)
	// One of two query terms, matched once: 0.5 * 1/2.
	assert.InDelta(t, 0.25, results[0].KeywordScore, 1e-12)
	assert.InDelta(t, 1.0, results[0].SemanticScore, 1e-12)
	assert.InDelta(t, 0.625, results[0].Score, 1e-12)
}

func TestHybridSearch_InvalidWeight(t *testing.T) {
	e := NewEngine(vectorstore.NewMemoryStore(), &fakeEmbedder{})
	_, err := e.HybridSearch(context.Background(), HybridQuery{Text: "q", SemanticWeight: 1.2})
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestRelated(t *testing.T) {
	c := supportCorpus(t)
	emb := &fakeEmbedder{}
	e := NewEngine(c.store, emb)
	ctx := context.Background()

	results, err := e.Related(ctx, c.assistant, c.chunks[0].ID, 5, DefaultRelatedThreshold)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c.chunks[1].ID}, ids(results))
	assert.Zero(t, emb.calls, "related lookup reuses the stored vector")

	results, err = e.Related(ctx, c.assistant, c.chunks[4].ID, 5, DefaultRelatedThreshold)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = e.Related(ctx, c.assistant, uuid.New(), 5, DefaultRelatedThreshold)
	assert.ErrorIs(t, err, vectorstore.ErrNotFound)
}
