package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/crawler"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
	"github.com/nikhilbhutani/assistantkb/pkg/chunker"
	"github.com/nikhilbhutani/assistantkb/pkg/textextract"
)

var (
	ErrEmptyContent = errors.New("document has no text content")
	// ErrUnsupportedFormat is the extractor's sentinel, re-exported so callers
	// need not import the extractor.
	ErrUnsupportedFormat = textextract.ErrUnsupportedFormat
	ErrWrongSourceKind   = errors.New("operation not valid for this source kind")
)

// SourceRepository is the subset of source persistence the orchestrator
// drives.
type SourceRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Source, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus, errMsg string) error
	Finish(ctx context.Context, id uuid.UUID, status models.SourceStatus, errMsg string, summary *models.CrawlSummary) error
	ReplacePages(ctx context.Context, sourceID uuid.UUID, pages []models.Page) error
}

type Crawler interface {
	Crawl(ctx context.Context, req crawler.Request) (*crawler.Result, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// BatchSize bounds the texts sent in one embedding call.
	BatchSize int
	// AllowUnembeddedChunks stores chunks without vectors when embedding
	// fails instead of failing the document.
	AllowUnembeddedChunks bool
	MaxPages              int
	MaxDepth              int
	CrawlTimeout          time.Duration
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:             chunker.DefaultChunkSize,
		ChunkOverlap:          chunker.DefaultChunkOverlap,
		BatchSize:             100,
		AllowUnembeddedChunks: true,
		MaxPages:              50,
		MaxDepth:              2,
		CrawlTimeout:          10 * time.Minute,
	}
}

type Orchestrator struct {
	sources  SourceRepository
	store    vectorstore.Store
	crawler  Crawler
	embedder Embedder
	opts     Options
	log      *slog.Logger
}

func New(sources SourceRepository, store vectorstore.Store, c Crawler, embedder Embedder, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Orchestrator{
		sources:  sources,
		store:    store,
		crawler:  c,
		embedder: embedder,
		opts:     opts,
		log:      slog.Default(),
	}
}

// CrawlSource crawls a website source and replaces its pages, documents and
// chunks with the new run's output. Per-page failures do not fail the call;
// they set the source to ERROR with every message joined. The returned error
// is non-nil only when the run could not happen at all.
func (o *Orchestrator) CrawlSource(ctx context.Context, sourceID uuid.UUID) (*models.CrawlSummary, error) {
	src, err := o.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if src.Kind != models.SourceKindWebsite {
		return nil, fmt.Errorf("crawl source %s: %w", sourceID, ErrWrongSourceKind)
	}
	if err := o.sources.UpdateStatus(ctx, src.ID, models.SourceStatusSyncing, ""); err != nil {
		return nil, err
	}

	log := o.log.With("source_id", src.ID)
	log.Info("crawl ingestion started", "url", src.URL)

	crawlCtx, cancel := context.WithTimeout(ctx, o.opts.CrawlTimeout)
	res, crawlErr := o.crawler.Crawl(crawlCtx, crawler.Request{
		SeedURL:        src.URL,
		MaxPages:       o.opts.MaxPages,
		MaxDepth:       o.opts.MaxDepth,
		AllowedDomains: src.AllowedDomains,
	})
	cancel()

	if res == nil {
		return nil, o.fail(ctx, src.ID, crawlErr, nil)
	}

	summary := &models.CrawlSummary{
		Pages:       len(res.Pages),
		FailedPages: len(res.Failed()),
		Events:      make(map[string]int),
		Truncated:   res.Truncated,
	}
	for kind, n := range res.EventCounts() {
		summary.Events[string(kind)] = n
	}
	for i := range res.Pages {
		res.Pages[i].SourceID = src.ID
	}

	if err := o.sources.ReplacePages(ctx, src.ID, res.Pages); err != nil {
		return nil, o.fail(ctx, src.ID, err, summary)
	}
	if crawlErr != nil {
		return summary, o.fail(ctx, src.ID, crawlErr, summary)
	}
	if err := o.store.DeleteBySource(ctx, src.ID); err != nil {
		return nil, o.fail(ctx, src.ID, err, summary)
	}

	var problems []string
	for _, p := range res.Pages {
		if p.Status != models.PageStatusCompleted {
			problems = append(problems, fmt.Sprintf("%s: %s", p.URL, p.ErrorMessage))
			continue
		}
		name := p.Title
		if name == "" {
			name = p.URL
		}
		doc, err := o.ingest(ctx, src, document{
			name:      name,
			docType:   models.DocTypeURL,
			content:   p.Content,
			originURL: p.URL,
			title:     p.Title,
		})
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.URL, err))
			continue
		}
		summary.Documents++
		summary.Chunks += doc.Metadata.ChunkCount
	}

	status := models.SourceStatusCompleted
	msg := ""
	if len(problems) > 0 {
		status = models.SourceStatusError
		msg = strings.Join(problems, "; ")
	}
	if err := o.sources.Finish(ctx, src.ID, status, msg, summary); err != nil {
		return summary, err
	}
	log.Info("crawl ingestion finished", "status", status, "pages", summary.Pages, "documents", summary.Documents, "chunks", summary.Chunks, "events", summary.Events)
	return summary, nil
}

type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
	// FileID is the object storage key of the original upload.
	FileID string
}

// IngestFile extracts, chunks, embeds and stores one uploaded file. An
// unsupported format is rejected before anything is written.
func (o *Orchestrator) IngestFile(ctx context.Context, sourceID uuid.UUID, in FileInput) (*models.Document, error) {
	format, err := textextract.DetectFromName(in.MimeType, in.Name)
	if err != nil {
		return nil, err
	}

	src, err := o.sources.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if err := o.sources.UpdateStatus(ctx, src.ID, models.SourceStatusSyncing, ""); err != nil {
		return nil, err
	}

	extracted, err := textextract.ExtractFormat(bytes.NewReader(in.Data), int64(len(in.Data)), format)
	if err != nil {
		return nil, o.fail(ctx, src.ID, fmt.Errorf("extract %s: %w", in.Name, err), nil)
	}

	extra := map[string]string{"format": string(extracted.Format)}
	if extracted.Pages > 0 {
		extra["pages"] = fmt.Sprint(extracted.Pages)
	}
	doc, err := o.ingest(ctx, src, document{
		name:    in.Name,
		docType: docTypeFor(extracted.Format),
		content: extracted.Content,
		title:   extracted.Title,
		fileID:  in.FileID,
		extra:   extra,
	})
	if err != nil {
		return doc, o.fail(ctx, src.ID, err, nil)
	}

	// A file source holds one document. The previous one goes only once its
	// replacement is complete.
	if src.Kind == models.SourceKindFile {
		if err := o.store.DeleteBySource(ctx, src.ID, doc.ID); err != nil {
			return doc, o.fail(ctx, src.ID, err, nil)
		}
	}

	if err := o.sources.Finish(ctx, src.ID, models.SourceStatusCompleted, "", nil); err != nil {
		return doc, err
	}
	return doc, nil
}

type document struct {
	name      string
	docType   models.DocType
	content   string
	originURL string
	title     string
	fileID    string
	extra     map[string]string
}

// ingest runs one document through chunk, embed and persist. The document
// row is written first so that failures leave a FAILED record behind.
func (o *Orchestrator) ingest(ctx context.Context, src *models.Source, in document) (*models.Document, error) {
	doc := &models.Document{
		ID:          uuid.New(),
		AssistantID: src.AssistantID,
		SourceID:    src.ID,
		Name:        in.name,
		Type:        in.docType,
		Content:     in.content,
		Status:      models.DocStatusProcessing,
		Metadata: models.DocumentMetadata{
			SourceID:  src.ID,
			FileID:    in.fileID,
			OriginURL: in.originURL,
		},
	}
	if err := o.store.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	chunks := ChunkText(in.content, chunker.ChunkOptions{ChunkSize: o.opts.ChunkSize, ChunkOverlap: o.opts.ChunkOverlap}, src.AssistantID, models.ChunkMetadata{
		SourceID:   src.ID,
		DocumentID: doc.ID,
		OriginURL:  in.originURL,
		Title:      in.title,
		Extra:      in.extra,
	})
	if len(chunks) == 0 {
		return doc, o.failDocument(ctx, doc, ErrEmptyContent)
	}

	unembedded, err := o.embedChunks(ctx, chunks)
	if err != nil {
		return doc, o.failDocument(ctx, doc, err)
	}

	if err := o.store.SaveChunks(ctx, chunks); err != nil {
		return doc, o.failDocument(ctx, doc, err)
	}

	total := 0
	for _, c := range chunks {
		total += c.TokenCount
	}
	doc.Status = models.DocStatusCompleted
	doc.Metadata.ChunkCount = len(chunks)
	doc.Metadata.TokenTotal = total
	doc.Metadata.Unembedded = unembedded
	if err := o.store.UpdateDocument(ctx, doc); err != nil {
		return doc, err
	}

	o.log.Info("document ingested", "document_id", doc.ID, "source_id", src.ID, "chunks", len(chunks), "tokens", total, "unembedded", unembedded)
	return doc, nil
}

// embedChunks fills in vectors batch by batch, one batch in flight at a time.
// After a failure the remaining chunks stay without vectors when the policy
// allows it; otherwise the error is returned.
func (o *Orchestrator) embedChunks(ctx context.Context, chunks []models.DocumentChunk) (int, error) {
	for start := 0; start < len(chunks); start += o.opts.BatchSize {
		end := min(start+o.opts.BatchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := o.embedder.Embed(ctx, contents(batch))
		if err != nil {
			if !o.opts.AllowUnembeddedChunks {
				return 0, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			o.log.Warn("embedding failed, storing chunks without vectors",
				"document_id", chunks[0].DocumentID, "from_chunk", start, "remaining", len(chunks)-start, "error", err)
			return len(chunks) - start, nil
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}
	return 0, nil
}

func (o *Orchestrator) failDocument(ctx context.Context, doc *models.Document, cause error) error {
	doc.Status = models.DocStatusFailed
	doc.ErrorMessage = cause.Error()
	if err := o.store.UpdateDocument(ctx, doc); err != nil {
		o.log.Error("failed to mark document failed", "document_id", doc.ID, "error", err)
	}
	return cause
}

func (o *Orchestrator) fail(ctx context.Context, sourceID uuid.UUID, cause error, summary *models.CrawlSummary) error {
	o.log.Error("ingestion failed", "source_id", sourceID, "error", cause)
	if err := o.sources.Finish(ctx, sourceID, models.SourceStatusError, cause.Error(), summary); err != nil {
		o.log.Error("failed to record source error", "source_id", sourceID, "error", err)
	}
	return cause
}

func docTypeFor(f textextract.Format) models.DocType {
	switch f {
	case textextract.FormatPDF:
		return models.DocTypePDF
	case textextract.FormatDOCX:
		return models.DocTypeDOCX
	default:
		return models.DocTypeTXT
	}
}
