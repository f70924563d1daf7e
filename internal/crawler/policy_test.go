package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.COM", "https://example.com/"},
		{"HTTPS://example.com:443/a", "https://example.com/a"},
		{"http://example.com:80/a?b=1", "http://example.com/a?b=1"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://user:pw@example.com/", "https://example.com/"},
		{"https://bücher.de/", "https://xn--bcher-kva.de/"},
	}
	for _, tt := range tests {
		got, err := normalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := normalizeURL("http://[::1")
	assert.Error(t, err)
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		host, want string
	}{
		{"www.example.com", "example.com"},
		{"docs.example.co.uk", "example.co.uk"},
		{"example.com.", "example.com"},
		{"127.0.0.1", "127.0.0.1"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RegistrableDomain(tt.host), tt.host)
	}
}

func TestDomainPolicy(t *testing.T) {
	mustParse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}

	p := NewDomainPolicy(mustParse("https://www.example.com/start"), nil)
	assert.Equal(t, []string{"example.com"}, p.Domains())
	assert.True(t, p.Allows(mustParse("https://example.com/")))
	assert.True(t, p.Allows(mustParse("https://blog.example.com/post")))
	assert.False(t, p.Allows(mustParse("https://notexample.com/")))
	assert.False(t, p.Allows(mustParse("https://example.com.evil.net/")))

	p = NewDomainPolicy(mustParse("https://www.example.com/"), []string{" *.Docs.Example.com ", ""})
	assert.Equal(t, []string{"docs.example.com"}, p.Domains())
	assert.True(t, p.Allows(mustParse("https://api.docs.example.com/")))
	assert.False(t, p.Allows(mustParse("https://www.example.com/")))
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<p>hi</p>"))
		case "/moved":
			http.Redirect(w, r, "/ok", http.StatusFound)
		case "/big":
			w.Write([]byte(strings.Repeat("x", 2048)))
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{UserAgent: "test-agent", MaxBodyBytes: 1024})
	ctx := context.Background()

	resp, err := f.Get(ctx, srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "<p>hi</p>", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType)

	resp, err = f.Get(ctx, srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/ok", resp.FinalURL)

	_, err = f.Get(ctx, srv.URL+"/broken")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	_, err = f.Get(ctx, srv.URL+"/big")
	assert.ErrorIs(t, err, errBodyTooLarge)
}
