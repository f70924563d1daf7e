package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/models"
)

var ErrNotFound = errors.New("not found")

// SimilarityQuery selects chunks whose cosine similarity to Vector is
// strictly greater than Threshold. Chunks without an embedding never match.
type SimilarityQuery struct {
	AssistantID    uuid.UUID
	Vector         []float32
	Threshold      float64
	Limit          int
	Types          []models.DocType
	ExcludeChunkID uuid.UUID
}

// KeywordQuery ranks chunks by full-text relevance to Text. Query terms are
// stemmed and OR'ed: a chunk matches when it contains any term, and covering
// more terms scores higher. Scores are in [0, 1) and only matching chunks are
// returned.
type KeywordQuery struct {
	AssistantID uuid.UUID
	Text        string
	Limit       int
	Types       []models.DocType
}

// HybridQuery scores every chunk of the assistant on both signals and keeps
// those whose blend semantic*SemanticWeight + keyword*(1-SemanticWeight) is
// strictly greater than Cutoff. The keyword signal follows KeywordQuery and is
// zero for chunks without a matching term. The semantic signal is zero for
// chunks without an embedding. A signal with zero weight is not computed and
// reported as zero.
type HybridQuery struct {
	AssistantID    uuid.UUID
	Vector         []float32
	Text           string
	SemanticWeight float64
	Cutoff         float64
	Limit          int
	Types          []models.DocType
}

// Match is a stored chunk joined with its parent document. Chunk.Embedding is
// not populated. SemanticScore and KeywordScore are only set by QueryHybrid.
type Match struct {
	Chunk         models.DocumentChunk
	DocumentName  string
	DocumentType  models.DocType
	SourceURL     string
	Score         float64
	SemanticScore float64
	KeywordScore  float64
}

// Store persists documents and chunks and answers similarity and keyword
// queries. Results are ordered by score descending, then chunk id ascending.
type Store interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	UpdateDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context, sourceID uuid.UUID) ([]models.Document, error)
	SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error
	DeleteBySource(ctx context.Context, sourceID uuid.UUID, keep ...uuid.UUID) error
	GetChunk(ctx context.Context, assistantID, chunkID uuid.UUID) (*models.DocumentChunk, error)
	QueryBySimilarity(ctx context.Context, q SimilarityQuery) ([]Match, error)
	QueryByKeyword(ctx context.Context, q KeywordQuery) ([]Match, error)
	QueryHybrid(ctx context.Context, q HybridQuery) ([]Match, error)
}

func typeStrings(types []models.DocType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
