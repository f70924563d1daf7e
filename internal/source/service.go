package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/assistantkb/internal/models"
)

var ErrNotFound = errors.New("source not found")

const sourceColumns = `id, assistant_id, kind, name, url, allowed_domains, sync_frequency, file_name, mime_type,
	file_size_bytes, status, error_message, crawl_summary, last_synced_at, created_at, updated_at`

type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

func scanSource(row pgx.Row) (*models.Source, error) {
	var s models.Source
	err := row.Scan(&s.ID, &s.AssistantID, &s.Kind, &s.Name, &s.URL, &s.AllowedDomains, &s.SyncFrequency, &s.FileName, &s.MimeType,
		&s.FileSizeBytes, &s.Status, &s.ErrorMessage, &s.CrawlSummary, &s.LastSyncedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &s, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRow(ctx, "SELECT "+sourceColumns+" FROM sources WHERE id = $1", id))
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// GetForAssistant returns the source only if it belongs to the assistant.
func (s *Service) GetForAssistant(ctx context.Context, assistantID, id uuid.UUID) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRow(ctx,
		"SELECT "+sourceColumns+" FROM sources WHERE id = $1 AND assistant_id = $2", id, assistantID))
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (s *Service) Create(ctx context.Context, src *models.Source) (*models.Source, error) {
	if src.Status == "" {
		src.Status = models.SourceStatusPending
	}
	created, err := scanSource(s.db.QueryRow(ctx,
		`INSERT INTO sources (assistant_id, kind, name, url, allowed_domains, sync_frequency, file_name, mime_type, file_size_bytes, status)
		 VALUES ($1, $2, $3, $4, COALESCE($5::text[], '{}'), $6, $7, $8, $9, $10)
		 RETURNING `+sourceColumns,
		src.AssistantID, src.Kind, src.Name, src.URL, src.AllowedDomains, src.SyncFrequency, src.FileName, src.MimeType, src.FileSizeBytes, src.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return created, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE sources SET status = $2, error_message = $3, updated_at = now() WHERE id = $1",
		id, status, errMsg,
	)
	if err != nil {
		return fmt.Errorf("update source status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update source status: %w", ErrNotFound)
	}
	return nil
}

// Finish records the terminal status of an ingestion run.
func (s *Service) Finish(ctx context.Context, id uuid.UUID, status models.SourceStatus, errMsg string, summary *models.CrawlSummary) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sources
		 SET status = $2, error_message = $3, crawl_summary = COALESCE($4, crawl_summary), last_synced_at = $5, updated_at = now()
		 WHERE id = $1`,
		id, status, errMsg, summary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finish source: %w", err)
	}
	return nil
}

// ReplacePages deletes the source's previous pages and stores the new set in
// one transaction.
func (s *Service) ReplacePages(ctx context.Context, sourceID uuid.UUID, pages []models.Page) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM pages WHERE source_id = $1", sourceID); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}

	if len(pages) > 0 {
		rows := make([][]any, len(pages))
		for i, p := range pages {
			id := p.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			rows[i] = []any{id, sourceID, p.URL, p.Title, p.Content, p.Links, p.Depth, p.Status, p.ErrorMessage, p.ScrapedAt}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"pages"},
			[]string{"id", "source_id", "url", "title", "content", "links", "depth", "status", "error_message", "scraped_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert pages: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Service) ListPages(ctx context.Context, sourceID uuid.UUID) ([]models.Page, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_id, url, title, links, depth, status, error_message, scraped_at
		 FROM pages WHERE source_id = $1 ORDER BY scraped_at, url`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.ID, &p.SourceID, &p.URL, &p.Title, &p.Links, &p.Depth, &p.Status, &p.ErrorMessage, &p.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}
