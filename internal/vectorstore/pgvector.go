package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/assistantkb/internal/models"
)

type PgVectorStore struct {
	db *pgxpool.Pool
}

func NewPgVectorStore(db *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{db: db}
}

func (s *PgVectorStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, assistant_id, source_id, name, type, content, status, error_message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		doc.ID, doc.AssistantID, doc.SourceID, doc.Name, doc.Type, doc.Content, doc.Status, doc.ErrorMessage, doc.Metadata,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PgVectorStore) UpdateDocument(ctx context.Context, doc *models.Document) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = $3, metadata = $4 WHERE id = $1`,
		doc.ID, doc.Status, doc.ErrorMessage, doc.Metadata,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", doc.ID, ErrNotFound)
	}
	return nil
}

func (s *PgVectorStore) ListDocuments(ctx context.Context, sourceID uuid.UUID) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, assistant_id, source_id, name, type, status, error_message, metadata, created_at
		 FROM documents WHERE source_id = $1
		 ORDER BY created_at, id`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.AssistantID, &d.SourceID, &d.Name, &d.Type, &d.Status, &d.ErrorMessage, &d.Metadata, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PgVectorStore) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		var embedding *pgvector.Vector
		if len(c.Embedding) > 0 {
			v := pgvector.NewVector(c.Embedding)
			embedding = &v
		}
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, assistant_id, chunk_index, content, embedding, token_count, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.DocumentID, c.AssistantID, c.ChunkIndex, c.Content, embedding, c.TokenCount, c.Metadata,
		)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteBySource removes every document of the source except those in keep;
// chunks follow by cascade.
func (s *PgVectorStore) DeleteBySource(ctx context.Context, sourceID uuid.UUID, keep ...uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM documents WHERE source_id = $1 AND ($2::uuid[] IS NULL OR NOT (id = ANY($2)))",
		sourceID, keep,
	)
	if err != nil {
		return fmt.Errorf("delete documents of source %s: %w", sourceID, err)
	}
	return nil
}

func (s *PgVectorStore) GetChunk(ctx context.Context, assistantID, chunkID uuid.UUID) (*models.DocumentChunk, error) {
	var (
		c         models.DocumentChunk
		embedding *pgvector.Vector
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, document_id, assistant_id, chunk_index, content, embedding, token_count, metadata, created_at
		 FROM document_chunks WHERE id = $1 AND assistant_id = $2`,
		chunkID, assistantID,
	).Scan(&c.ID, &c.DocumentID, &c.AssistantID, &c.ChunkIndex, &c.Content, &embedding, &c.TokenCount, &c.Metadata, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	return &c, nil
}

func (s *PgVectorStore) QueryBySimilarity(ctx context.Context, q SimilarityQuery) ([]Match, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	var exclude *uuid.UUID
	if q.ExcludeChunkID != uuid.Nil {
		exclude = &q.ExcludeChunkID
	}

	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.document_id, c.assistant_id, c.chunk_index, c.content, c.token_count, c.metadata, c.created_at,
		        d.name, d.type, 1 - (c.embedding <=> $1) AS score
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.assistant_id = $2
		   AND c.embedding IS NOT NULL
		   AND 1 - (c.embedding <=> $1) > $3
		   AND ($4::text[] IS NULL OR d.type = ANY($4))
		   AND ($5::uuid IS NULL OR c.id <> $5)
		 ORDER BY score DESC, c.id ASC
		 LIMIT $6`,
		pgvector.NewVector(q.Vector), q.AssistantID, q.Threshold, typeStrings(q.Types), exclude, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return scanMatches(rows, false)
}

// anyTermQuery turns the stemmed terms of $1 into an OR query. plainto_tsquery
// alone would AND them and drop chunks that cover only part of the query.
const anyTermQuery = `replace(plainto_tsquery('english', $1)::text, '&', '|')::tsquery`

// QueryByKeyword uses ts_rank normalization 32 (rank/(rank+1)), which keeps
// scores in [0, 1) so they blend with cosine similarity.
func (s *PgVectorStore) QueryByKeyword(ctx context.Context, q KeywordQuery) ([]Match, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	rows, err := s.db.Query(ctx,
		`WITH q AS (SELECT `+anyTermQuery+` AS tsq)
		 SELECT c.id, c.document_id, c.assistant_id, c.chunk_index, c.content, c.token_count, c.metadata, c.created_at,
		        d.name, d.type, ts_rank(c.tsv, q.tsq, 32) AS score
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 CROSS JOIN q
		 WHERE c.assistant_id = $2
		   AND c.tsv @@ q.tsq
		   AND ($3::text[] IS NULL OR d.type = ANY($3))
		 ORDER BY score DESC, c.id ASC
		 LIMIT $4`,
		q.Text, q.AssistantID, typeStrings(q.Types), q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return scanMatches(rows, false)
}

// QueryHybrid computes both signals for every chunk of the assistant in one
// pass, so a chunk's blend never depends on where it ranks on either side.
func (s *PgVectorStore) QueryHybrid(ctx context.Context, q HybridQuery) ([]Match, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}

	rows, err := s.db.Query(ctx,
		`WITH q AS (SELECT `+anyTermQuery+` AS tsq),
		 scored AS (
		   SELECT c.id, c.document_id, c.assistant_id, c.chunk_index, c.content, c.token_count, c.metadata, c.created_at,
		          d.name, d.type,
		          CASE WHEN $3::float8 > 0 AND c.embedding IS NOT NULL
		               THEN 1 - (c.embedding <=> $2) ELSE 0 END::float8 AS semantic,
		          CASE WHEN $3::float8 < 1 AND c.tsv @@ q.tsq
		               THEN ts_rank(c.tsv, q.tsq, 32) ELSE 0 END::float8 AS keyword
		   FROM document_chunks c
		   JOIN documents d ON d.id = c.document_id
		   CROSS JOIN q
		   WHERE c.assistant_id = $4
		     AND ($5::text[] IS NULL OR d.type = ANY($5))
		 )
		 SELECT id, document_id, assistant_id, chunk_index, content, token_count, metadata, created_at,
		        name, type, semantic * $3::float8 + keyword * (1 - $3::float8) AS score, semantic, keyword
		 FROM scored
		 WHERE semantic * $3::float8 + keyword * (1 - $3::float8) > $6
		 ORDER BY score DESC, id ASC
		 LIMIT $7`,
		q.Text, pgvector.NewVector(q.Vector), q.SemanticWeight, q.AssistantID, typeStrings(q.Types), q.Cutoff, q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return scanMatches(rows, true)
}

// scanMatches reads match rows. Hybrid rows carry the semantic and keyword
// scores after the blended score.
func scanMatches(rows pgx.Rows, hybrid bool) ([]Match, error) {
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		c := &m.Chunk
		dest := []any{&c.ID, &c.DocumentID, &c.AssistantID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.Metadata, &c.CreatedAt,
			&m.DocumentName, &m.DocumentType, &m.Score}
		if hybrid {
			dest = append(dest, &m.SemanticScore, &m.KeywordScore)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		m.SourceURL = c.Metadata.OriginURL
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return matches, nil
}
