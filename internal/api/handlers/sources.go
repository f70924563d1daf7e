package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/assistant"
	"github.com/nikhilbhutani/assistantkb/internal/cache"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/queue"
	"github.com/nikhilbhutani/assistantkb/internal/source"
	"github.com/nikhilbhutani/assistantkb/pkg/textextract"
)

const maxUploadBytes = 32 << 20

type SourceStore interface {
	Create(ctx context.Context, src *models.Source) (*models.Source, error)
	GetForAssistant(ctx context.Context, assistantID, id uuid.UUID) (*models.Source, error)
	ListPages(ctx context.Context, sourceID uuid.UUID) ([]models.Page, error)
}

type DocumentLister interface {
	ListDocuments(ctx context.Context, sourceID uuid.UUID) ([]models.Document, error)
}

type Locker interface {
	Lock(ctx context.Context, name, token string, ttl time.Duration) error
	Unlock(ctx context.Context, name, token string) error
}

type Enqueuer interface {
	EnqueueSourceCrawl(ctx context.Context, p queue.SourceCrawlPayload) error
	EnqueueDocumentIngest(ctx context.Context, p queue.DocumentIngestPayload) error
}

type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
}

type SourceHandler struct {
	sources SourceStore
	docs    DocumentLister
	locks   Locker
	queue   Enqueuer
	files   Uploader
	lockTTL time.Duration
}

// NewSourceHandler wires the source endpoints. lockTTL bounds how long a
// requested crawl keeps the source locked if the worker never releases it.
func NewSourceHandler(sources SourceStore, docs DocumentLister, locks Locker, q Enqueuer, files Uploader, lockTTL time.Duration) *SourceHandler {
	return &SourceHandler{sources: sources, docs: docs, locks: locks, queue: q, files: files, lockTTL: lockTTL}
}

type createSourceRequest struct {
	Kind           models.SourceKind `json:"kind"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	AllowedDomains []string          `json:"allowed_domains"`
	SyncFrequency  string            `json:"sync_frequency"`
}

func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Kind {
	case models.SourceKindWebsite:
		if strings.TrimSpace(req.URL) == "" {
			writeError(w, http.StatusBadRequest, "url is required for website sources")
			return
		}
	case models.SourceKindFile:
	default:
		writeError(w, http.StatusBadRequest, `kind must be "website" or "file"`)
		return
	}

	src, err := h.sources.Create(r.Context(), &models.Source{
		AssistantID:    assistant.IDFromContext(r.Context()),
		Kind:           req.Kind,
		Name:           req.Name,
		URL:            strings.TrimSpace(req.URL),
		AllowedDomains: req.AllowedDomains,
		SyncFrequency:  req.SyncFrequency,
	})
	if err != nil {
		slog.Error("create source", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create source")
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	src, ok := h.loadSource(w, r)
	if !ok {
		return
	}
	docs, err := h.docs.ListDocuments(r.Context(), src.ID)
	if err != nil {
		slog.Error("list documents", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load documents")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": src, "documents": docs})
}

func (h *SourceHandler) Pages(w http.ResponseWriter, r *http.Request) {
	src, ok := h.loadSource(w, r)
	if !ok {
		return
	}
	pages, err := h.sources.ListPages(r.Context(), src.ID)
	if err != nil {
		slog.Error("list pages", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load pages")
		return
	}
	if pages == nil {
		pages = []models.Page{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": pages, "count": len(pages)})
}

// Crawl locks the source and queues a crawl. A source that is already being
// crawled answers 409.
func (h *SourceHandler) Crawl(w http.ResponseWriter, r *http.Request) {
	src, ok := h.loadSource(w, r)
	if !ok {
		return
	}
	if src.Kind != models.SourceKindWebsite {
		writeError(w, http.StatusBadRequest, "only website sources can be crawled")
		return
	}

	ctx := r.Context()
	lock := cache.SourceLock(src.ID.String())
	token := uuid.NewString()
	if err := h.locks.Lock(ctx, lock, token, h.lockTTL); err != nil {
		if errors.Is(err, cache.ErrLocked) {
			writeError(w, http.StatusConflict, "source is already being ingested")
			return
		}
		slog.Error("lock source", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue crawl")
		return
	}

	err := h.queue.EnqueueSourceCrawl(ctx, queue.SourceCrawlPayload{
		SourceID:    src.ID.String(),
		AssistantID: src.AssistantID.String(),
		LockToken:   token,
	})
	if err != nil {
		if uerr := h.locks.Unlock(context.WithoutCancel(ctx), lock, token); uerr != nil {
			slog.Warn("failed to release source lock", "source_id", src.ID, "error", uerr)
		}
		slog.Error("enqueue crawl", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue crawl")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "source_id": src.ID.String()})
}

// Upload stores the file bytes and queues their ingestion. Unsupported
// formats are refused before anything is stored.
func (h *SourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	src, ok := h.loadSource(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	name := path.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if _, err := textextract.DetectFromName(mimeType, name); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	ctx := r.Context()
	fileID := path.Join(src.AssistantID.String(), src.ID.String(), uuid.NewString()+"-"+name)
	if err := h.files.Upload(ctx, fileID, data, mimeType); err != nil {
		slog.Error("store upload", "source_id", src.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to store file")
		return
	}

	err = h.queue.EnqueueDocumentIngest(ctx, queue.DocumentIngestPayload{
		SourceID:    src.ID.String(),
		AssistantID: src.AssistantID.String(),
		FileID:      fileID,
		FileName:    name,
		MimeType:    mimeType,
	})
	if err != nil {
		slog.Error("enqueue ingest", "source_id", src.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to queue ingestion")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "source_id": src.ID.String(), "file_id": fileID})
}

func (h *SourceHandler) loadSource(w http.ResponseWriter, r *http.Request) (*models.Source, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source ID")
		return nil, false
	}
	src, err := h.sources.GetForAssistant(r.Context(), assistant.IDFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return nil, false
		}
		slog.Error("get source", "source_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load source")
		return nil, false
	}
	return src, true
}
