package vectorstore

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/models"
)

// MemoryStore is an in-process Store used by tests and single-node demos.
// Similarity is exact cosine over all stored embeddings.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[uuid.UUID]*models.Document
	chunks []memChunk
	now    func() time.Time
}

type memChunk struct {
	chunk models.DocumentChunk
	terms []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[uuid.UUID]*models.Document),
		now:  time.Now,
	}
}

func (s *MemoryStore) SaveDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("insert document: duplicate id %s", doc.ID)
	}
	doc.CreatedAt = s.now()
	cp := *doc
	cp.Content = ""
	s.docs[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.docs[doc.ID]
	if !ok {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	stored.Status = doc.Status
	stored.ErrorMessage = doc.ErrorMessage
	stored.Metadata = doc.Metadata
	return nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, sourceID uuid.UUID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []models.Document
	for _, d := range s.docs {
		if d.SourceID == sourceID {
			docs = append(docs, *d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return bytes.Compare(docs[i].ID[:], docs[j].ID[:]) < 0
	})
	return docs, nil
}

func (s *MemoryStore) SaveChunks(_ context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if _, ok := s.docs[c.DocumentID]; !ok {
			return fmt.Errorf("insert chunks: document %s: %w", c.DocumentID, ErrNotFound)
		}
	}
	for _, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		s.chunks = append(s.chunks, memChunk{chunk: c, terms: terms(c.Content)})
	}
	return nil
}

func (s *MemoryStore) DeleteBySource(_ context.Context, sourceID uuid.UUID, keep ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[uuid.UUID]bool)
	for id, d := range s.docs {
		if d.SourceID == sourceID && !slices.Contains(keep, id) {
			removed[id] = true
			delete(s.docs, id)
		}
	}
	s.chunks = slices.DeleteFunc(s.chunks, func(c memChunk) bool {
		return removed[c.chunk.DocumentID]
	})
	return nil
}

func (s *MemoryStore) GetChunk(_ context.Context, assistantID, chunkID uuid.UUID) (*models.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.chunks {
		if c.chunk.ID == chunkID && c.chunk.AssistantID == assistantID {
			out := c.chunk
			out.Embedding = slices.Clone(c.chunk.Embedding)
			return &out, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
}

func (s *MemoryStore) QueryBySimilarity(_ context.Context, q SimilarityQuery) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, c := range s.chunks {
		if c.chunk.AssistantID != q.AssistantID || len(c.chunk.Embedding) == 0 || c.chunk.ID == q.ExcludeChunkID {
			continue
		}
		doc := s.docs[c.chunk.DocumentID]
		if !typeAllowed(doc.Type, q.Types) {
			continue
		}
		score := cosineSimilarity(q.Vector, c.chunk.Embedding)
		if score <= q.Threshold {
			continue
		}
		matches = append(matches, s.match(c, doc, score))
	}
	return rank(matches, q.Limit), nil
}

func (s *MemoryStore) QueryByKeyword(_ context.Context, q KeywordQuery) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qt := terms(q.Text)
	var matches []Match
	for _, c := range s.chunks {
		if c.chunk.AssistantID != q.AssistantID {
			continue
		}
		doc := s.docs[c.chunk.DocumentID]
		if !typeAllowed(doc.Type, q.Types) {
			continue
		}
		score := keywordScore(qt, c.terms)
		if score <= 0 {
			continue
		}
		matches = append(matches, s.match(c, doc, score))
	}
	return rank(matches, q.Limit), nil
}

func (s *MemoryStore) QueryHybrid(_ context.Context, q HybridQuery) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := q.SemanticWeight
	qt := terms(q.Text)
	var matches []Match
	for _, c := range s.chunks {
		if c.chunk.AssistantID != q.AssistantID {
			continue
		}
		doc := s.docs[c.chunk.DocumentID]
		if !typeAllowed(doc.Type, q.Types) {
			continue
		}
		var semantic, keyword float64
		if w > 0 && len(c.chunk.Embedding) > 0 {
			semantic = cosineSimilarity(q.Vector, c.chunk.Embedding)
		}
		if w < 1 {
			keyword = keywordScore(qt, c.terms)
		}
		score := semantic*w + keyword*(1-w)
		if score <= q.Cutoff {
			continue
		}
		m := s.match(c, doc, score)
		m.SemanticScore, m.KeywordScore = semantic, keyword
		matches = append(matches, m)
	}
	return rank(matches, q.Limit), nil
}

func (s *MemoryStore) match(c memChunk, doc *models.Document, score float64) Match {
	chunk := c.chunk
	chunk.Embedding = nil
	return Match{
		Chunk:        chunk,
		DocumentName: doc.Name,
		DocumentType: doc.Type,
		SourceURL:    chunk.Metadata.OriginURL,
		Score:        score,
	}
}

func rank(matches []Match, limit int) []Match {
	if limit <= 0 {
		limit = 10
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return bytes.Compare(matches[i].Chunk.ID[:], matches[j].Chunk.ID[:]) < 0
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func typeAllowed(t models.DocType, types []models.DocType) bool {
	return len(types) == 0 || slices.Contains(types, t)
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
