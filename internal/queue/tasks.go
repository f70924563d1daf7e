package queue

const (
	TypeSourceCrawl    = "source:crawl"
	TypeDocumentIngest = "document:ingest"
)

type SourceCrawlPayload struct {
	SourceID    string `json:"source_id"`
	AssistantID string `json:"assistant_id"`
	// LockToken identifies the ingestion lock taken when the crawl was
	// requested; the worker releases it when the task is done for good.
	LockToken string `json:"lock_token"`
}

type DocumentIngestPayload struct {
	SourceID    string `json:"source_id"`
	AssistantID string `json:"assistant_id"`
	FileID      string `json:"file_id"`
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
}
