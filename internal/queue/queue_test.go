package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	task, err := NewTask(TypeDocumentIngest, DocumentIngestPayload{SourceID: "s", FileID: "a/s/f.pdf", MimeType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, TypeDocumentIngest, task.Type())

	var p DocumentIngestPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "a/s/f.pdf", p.FileID)
}

func TestServeMuxRoutes(t *testing.T) {
	var got []string
	handler := func(name string, err error) asynq.Handler {
		return asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
			got = append(got, name)
			return err
		})
	}
	boom := errors.New("boom")
	mux := NewServeMux(handler("crawl", nil), handler("ingest", boom))

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeSourceCrawl, nil)))
	assert.ErrorIs(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeDocumentIngest, nil)), boom)
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown:type", nil)))
	assert.Equal(t, []string{"crawl", "ingest"}, got)
}
