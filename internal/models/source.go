package models

import (
	"time"

	"github.com/google/uuid"
)

type SourceKind string

const (
	SourceKindWebsite SourceKind = "website"
	SourceKindFile    SourceKind = "file"
)

type SourceStatus string

const (
	SourceStatusPending   SourceStatus = "PENDING"
	SourceStatusSyncing   SourceStatus = "SYNCING"
	SourceStatusCompleted SourceStatus = "COMPLETED"
	SourceStatusError     SourceStatus = "ERROR"
)

// Source is a website or an uploaded file owned by one assistant.
type Source struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	AssistantID    uuid.UUID     `json:"assistant_id" db:"assistant_id"`
	Kind           SourceKind    `json:"kind" db:"kind"`
	Name           string        `json:"name" db:"name"`
	URL            string        `json:"url,omitempty" db:"url"`
	AllowedDomains []string      `json:"allowed_domains,omitempty" db:"allowed_domains"`
	SyncFrequency  string        `json:"sync_frequency,omitempty" db:"sync_frequency"`
	FileName       string        `json:"file_name,omitempty" db:"file_name"`
	MimeType       string        `json:"mime_type,omitempty" db:"mime_type"`
	FileSizeBytes  int64         `json:"file_size_bytes,omitempty" db:"file_size_bytes"`
	Status         SourceStatus  `json:"status" db:"status"`
	ErrorMessage   string        `json:"error_message,omitempty" db:"error_message"`
	CrawlSummary   *CrawlSummary `json:"crawl_summary,omitempty" db:"crawl_summary"`
	LastSyncedAt   *time.Time    `json:"last_synced_at,omitempty" db:"last_synced_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// CrawlSummary is the outcome of the latest crawl run of a website Source.
type CrawlSummary struct {
	Pages       int            `json:"pages"`
	FailedPages int            `json:"failed_pages"`
	Documents   int            `json:"documents"`
	Chunks      int            `json:"chunks"`
	Events      map[string]int `json:"events,omitempty"`
	Truncated   bool           `json:"truncated,omitempty"`
}

type PageStatus string

const (
	PageStatusPending   PageStatus = "PENDING"
	PageStatusSyncing   PageStatus = "SYNCING"
	PageStatusCompleted PageStatus = "COMPLETED"
	PageStatusError     PageStatus = "ERROR"
)

// Page is one crawled URL under a website Source.
type Page struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	SourceID     uuid.UUID  `json:"source_id" db:"source_id"`
	URL          string     `json:"url" db:"url"`
	Title        string     `json:"title" db:"title"`
	Content      string     `json:"-" db:"content"`
	Links        []string   `json:"links,omitempty" db:"links"`
	Depth        int        `json:"depth" db:"depth"`
	Status       PageStatus `json:"status" db:"status"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	ScrapedAt    time.Time  `json:"scraped_at" db:"scraped_at"`
}
