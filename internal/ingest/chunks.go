package ingest

import (
	"maps"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/pkg/chunker"
	"github.com/nikhilbhutani/assistantkb/pkg/tokenizer"
)

// ChunkText splits text into document chunks carrying a copy of meta with
// their own index. IDs are time-ordered so that id order is ingestion order.
func ChunkText(text string, opts chunker.ChunkOptions, assistantID uuid.UUID, meta models.ChunkMetadata) []models.DocumentChunk {
	pieces := chunker.Chunk(text, opts)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		m := meta
		m.ChunkIndex = p.Index
		m.Extra = maps.Clone(meta.Extra)

		chunks[i] = models.DocumentChunk{
			ID:          uuid.Must(uuid.NewV7()),
			DocumentID:  meta.DocumentID,
			AssistantID: assistantID,
			ChunkIndex:  p.Index,
			Content:     p.Content,
			TokenCount:  tokenizer.EstimateTokens(p.Content),
			Metadata:    m,
		}
	}
	return chunks
}

func contents(chunks []models.DocumentChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
