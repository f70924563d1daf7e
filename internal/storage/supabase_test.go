package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// objectServer mimics the storage API's object endpoints.
func objectServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	objects := map[string][]byte{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		defer mu.Unlock()

		key := r.URL.EscapedPath()
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			objects[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			data, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		case http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSupabaseStorage_RoundTrip(t *testing.T) {
	srv := objectServer(t)
	s := NewSupabaseStorage(srv.URL+"/", "key", "uploads")
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "a1/s1/price list.txt", []byte("hello"), "text/plain"))

	data, err := s.Download(ctx, "a1/s1/price list.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, "a1/s1/price list.txt"))
	_, err = s.Download(ctx, "a1/s1/price list.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestSupabaseStorage_Errors(t *testing.T) {
	srv := objectServer(t)
	ctx := context.Background()

	bad := NewSupabaseStorage(srv.URL, "wrong", "uploads")
	err := bad.Upload(ctx, "x.txt", []byte("x"), "text/plain")
	assert.ErrorContains(t, err, "upload failed (401)")

	s := NewSupabaseStorage(srv.URL, "key", "uploads")
	s.maxBytes = 4
	require.NoError(t, s.Upload(ctx, "big.txt", []byte("too large"), "text/plain"))
	_, err = s.Download(ctx, "big.txt")
	assert.ErrorContains(t, err, "larger than 4 bytes")
}

func TestObjectURL(t *testing.T) {
	s := NewSupabaseStorage("https://proj.supabase.co", "k", "uploads")
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/uploads/a/b%20c.pdf", s.objectURL("/a/b c.pdf"))
}
