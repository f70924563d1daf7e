package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/assistantkb/internal/ingest"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/queue"
	"github.com/nikhilbhutani/assistantkb/internal/source"
	"github.com/nikhilbhutani/assistantkb/internal/storage"
)

type FileIngester interface {
	IngestFile(ctx context.Context, sourceID uuid.UUID, in ingest.FileInput) (*models.Document, error)
}

type Downloader interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

type DocumentWorker struct {
	orch    FileIngester
	storage Downloader
}

func NewDocumentWorker(orch FileIngester, store Downloader) *DocumentWorker {
	return &DocumentWorker{orch: orch, storage: store}
}

func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	sourceID, err := uuid.Parse(payload.SourceID)
	if err != nil {
		return fmt.Errorf("parse source ID: %w: %w", err, asynq.SkipRetry)
	}

	log := slog.With("source_id", sourceID, "file_id", payload.FileID)
	log.Info("ingesting document")

	data, err := w.storage.Download(ctx, payload.FileID)
	if err != nil {
		if permanent(err, storage.ErrObjectNotFound) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("download file: %w", err)
	}

	doc, err := w.orch.IngestFile(ctx, sourceID, ingest.FileInput{
		Name:     payload.FileName,
		MimeType: payload.MimeType,
		Data:     data,
		FileID:   payload.FileID,
	})
	if err != nil {
		if permanent(err, ingest.ErrUnsupportedFormat, ingest.ErrEmptyContent, source.ErrNotFound) {
			err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("ingest %s: %w", payload.FileName, err)
	}

	log.Info("document ingested", "document_id", doc.ID, "chunks", doc.Metadata.ChunkCount)
	return nil
}
