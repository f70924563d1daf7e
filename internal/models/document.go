package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type DocType string

const (
	DocTypeURL  DocType = "URL"
	DocTypePDF  DocType = "PDF"
	DocTypeDOCX DocType = "DOCX"
	DocTypeTXT  DocType = "TXT"
)

// ParseDocType accepts a type tag in any case.
func ParseDocType(s string) (DocType, bool) {
	switch DocType(strings.ToUpper(strings.TrimSpace(s))) {
	case DocTypeURL:
		return DocTypeURL, true
	case DocTypePDF:
		return DocTypePDF, true
	case DocTypeDOCX:
		return DocTypeDOCX, true
	case DocTypeTXT:
		return DocTypeTXT, true
	}
	return "", false
}

type DocStatus string

const (
	DocStatusProcessing DocStatus = "PROCESSING"
	DocStatusCompleted  DocStatus = "COMPLETED"
	DocStatusFailed     DocStatus = "FAILED"
)

type DocumentMetadata struct {
	SourceID   uuid.UUID `json:"source_id"`
	FileID     string    `json:"file_id,omitempty"`
	OriginURL  string    `json:"origin_url,omitempty"`
	ChunkCount int       `json:"chunk_count"`
	TokenTotal int       `json:"token_total"`
	Unembedded int       `json:"unembedded_chunks,omitempty"`
}

type Document struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	AssistantID  uuid.UUID        `json:"assistant_id" db:"assistant_id"`
	SourceID     uuid.UUID        `json:"source_id" db:"source_id"`
	Name         string           `json:"name" db:"name"`
	Type         DocType          `json:"type" db:"type"`
	Content      string           `json:"-" db:"content"`
	Status       DocStatus        `json:"status" db:"status"`
	ErrorMessage string           `json:"error_message,omitempty" db:"error_message"`
	Metadata     DocumentMetadata `json:"metadata" db:"metadata"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// ChunkMetadata holds the fields every chunk carries. Extra is reserved for
// values that differ between ingestion kinds (e.g. PDF page counts).
type ChunkMetadata struct {
	SourceID   uuid.UUID         `json:"source_id"`
	DocumentID uuid.UUID         `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	OriginURL  string            `json:"origin_url,omitempty"`
	Title      string            `json:"title,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// DocumentChunk is a contiguous slice of a document's text. IDs are UUIDv7 so
// that byte order follows ingestion order.
type DocumentChunk struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	DocumentID  uuid.UUID     `json:"document_id" db:"document_id"`
	AssistantID uuid.UUID     `json:"assistant_id" db:"assistant_id"`
	ChunkIndex  int           `json:"chunk_index" db:"chunk_index"`
	Content     string        `json:"content" db:"content"`
	Embedding   []float32     `json:"-" db:"embedding"`
	TokenCount  int           `json:"token_count" db:"token_count"`
	Metadata    ChunkMetadata `json:"metadata" db:"metadata"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}

// SearchResult is a per-query projection and is never persisted.
type SearchResult struct {
	ChunkID       uuid.UUID `json:"chunk_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentName  string    `json:"document_name"`
	DocumentType  DocType   `json:"document_type"`
	ChunkIndex    int       `json:"chunk_index"`
	Content       string    `json:"content"`
	Score         float64   `json:"score"`
	SemanticScore float64   `json:"semantic_score"`
	KeywordScore  float64   `json:"keyword_score,omitempty"`
	SourceURL     string    `json:"source_url,omitempty"`
}
