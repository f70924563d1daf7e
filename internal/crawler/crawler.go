package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/pkg/textextract"
)

var (
	ErrInvalidSeed     = errors.New("invalid seed url")
	ErrSeedUnreachable = errors.New("seed url unreachable")
)

type EventKind string

const (
	EventURLInvalid        EventKind = "url_invalid"
	EventURLAlreadySeen    EventKind = "url_already_seen"
	EventURLOutsideDomains EventKind = "url_outside_allowed_domains"
	EventFetchFailed       EventKind = "fetch_failed"
)

// Event records one skipped or failed URL.
type Event struct {
	Kind   EventKind `json:"kind"`
	URL    string    `json:"url"`
	Depth  int       `json:"depth"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type Request struct {
	SeedURL        string
	MaxPages       int
	MaxDepth       int
	AllowedDomains []string
}

type Result struct {
	Pages  []models.Page
	Events []Event
	// Truncated is set when the deadline stopped the run with frontier entries left.
	Truncated bool
}

// Failed returns the pages that ended in ERROR.
func (r *Result) Failed() []models.Page {
	var out []models.Page
	for _, p := range r.Pages {
		if p.Status == models.PageStatusError {
			out = append(out, p)
		}
	}
	return out
}

// EventCounts groups the event log by kind.
func (r *Result) EventCounts() map[EventKind]int {
	counts := make(map[EventKind]int)
	for _, e := range r.Events {
		counts[e.Kind]++
	}
	return counts
}

type Option func(*Crawler)

// WithRateLimit bounds fetches per second within one run. Zero disables it.
func WithRateLimit(perSecond float64) Option {
	return func(c *Crawler) { c.ratePerSec = perSecond }
}

// WithFetchTimeout bounds each fetch, including one that is in flight when
// the crawl deadline passes.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Crawler) { c.fetchTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) { c.log = l }
}

// Crawler holds configuration only; every Crawl call owns its frontier and
// visited set, so one Crawler can serve concurrent runs.
type Crawler struct {
	fetcher      Fetcher
	ratePerSec   float64
	fetchTimeout time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func New(f Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:      f,
		fetchTimeout: 30 * time.Second,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type frontierEntry struct {
	url   string
	depth int
}

type run struct {
	c       *Crawler
	req     Request
	policy  DomainPolicy
	limiter *rate.Limiter

	frontier []frontierEntry
	seen     map[string]bool // queued or fetched
	visited  map[string]bool // fetched, including redirect targets
	fetched  int
	result   *Result
}

// Crawl walks the seed's site breadth-first, one fetch at a time. It fetches
// at most MaxPages pages, never follows links beyond MaxDepth hops, never
// leaves the allowed domains and never fetches a URL twice. When ctx expires
// it stops dequeuing and returns what it has; an in-flight fetch is allowed to
// finish within the fetch timeout.
//
// A non-nil error is returned only when the seed is invalid or could not be
// fetched; the Result is still populated in the latter case.
func (c *Crawler) Crawl(ctx context.Context, req Request) (*Result, error) {
	seed, err := url.Parse(strings.TrimSpace(req.SeedURL))
	if err != nil || !seed.IsAbs() || !isHTTPScheme(seed) || seed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, req.SeedURL)
	}
	if req.MaxPages < 1 {
		req.MaxPages = 1
	}
	if req.MaxDepth < 0 {
		req.MaxDepth = 0
	}

	r := &run{
		c:       c,
		req:     req,
		policy:  NewDomainPolicy(seed, req.AllowedDomains),
		seen:    make(map[string]bool),
		visited: make(map[string]bool),
		result:  &Result{},
	}
	if c.ratePerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(c.ratePerSec), 1)
	}

	key, _ := normalizeURL(seed.String())
	r.seen[key] = true
	r.frontier = append(r.frontier, frontierEntry{url: seed.String(), depth: 0})

	c.log.Info("crawl started", "seed", seed.String(), "max_pages", req.MaxPages, "max_depth", req.MaxDepth, "domains", r.policy.Domains())

	for len(r.frontier) > 0 && r.fetched < req.MaxPages {
		if ctx.Err() != nil {
			r.result.Truncated = true
			c.log.Warn("crawl deadline reached", "seed", seed.String(), "fetched", r.fetched, "pending", len(r.frontier))
			break
		}
		entry := r.frontier[0]
		r.frontier = r.frontier[1:]
		r.process(ctx, entry)
	}

	c.log.Info("crawl finished", "seed", seed.String(), "pages", len(r.result.Pages), "events", len(r.result.Events))

	if len(r.result.Pages) == 0 && r.result.Truncated {
		return r.result, fmt.Errorf("%w: %v", ErrSeedUnreachable, ctx.Err())
	}
	if len(r.result.Pages) > 0 && r.result.Pages[0].Status == models.PageStatusError {
		return r.result, fmt.Errorf("%w: %s", ErrSeedUnreachable, r.result.Pages[0].ErrorMessage)
	}
	return r.result, nil
}

func (r *run) process(ctx context.Context, entry frontierEntry) {
	u, err := url.Parse(entry.url)
	if err != nil || !isHTTPScheme(u) {
		r.event(EventURLInvalid, entry.url, entry.depth, "unsupported scheme")
		return
	}
	key, err := normalizeURL(entry.url)
	if err != nil {
		r.event(EventURLInvalid, entry.url, entry.depth, err.Error())
		return
	}
	if r.visited[key] {
		r.event(EventURLAlreadySeen, entry.url, entry.depth, "")
		return
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			// Deadline hit while waiting for a slot; leave the entry unfetched.
			r.result.Truncated = true
			return
		}
	}

	r.visited[key] = true
	r.fetched++
	page, keep := r.fetch(ctx, entry)
	if !keep {
		return
	}
	r.result.Pages = append(r.result.Pages, page)
	if page.Status != models.PageStatusCompleted {
		return
	}
	if entry.depth+1 > r.req.MaxDepth {
		return
	}
	for _, link := range page.Links {
		r.enqueue(link, entry.depth+1)
	}
}

// fetch never cancels a request because of the crawl deadline; the fetcher
// timeout still applies. keep is false when a redirect landed on a page this
// run already holds.
func (r *run) fetch(ctx context.Context, entry frontierEntry) (page models.Page, keep bool) {
	page = models.Page{
		URL:       entry.url,
		Depth:     entry.depth,
		Status:    models.PageStatusSyncing,
		ScrapedAt: r.c.now(),
	}

	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.c.fetchTimeout)
	defer cancel()

	resp, err := r.c.fetcher.Get(fetchCtx, entry.url)
	if err != nil {
		return r.failPage(page, err.Error()), true
	}

	if resp.FinalURL != "" && resp.FinalURL != entry.url {
		final, err := url.Parse(resp.FinalURL)
		if err != nil || !isHTTPScheme(final) || !r.policy.Allows(final) {
			return r.failPage(page, fmt.Sprintf("redirected outside allowed domains to %s", resp.FinalURL)), true
		}
		entryKey, _ := normalizeURL(entry.url)
		if key, err := normalizeURL(resp.FinalURL); err == nil && key != entryKey {
			if r.visited[key] {
				r.event(EventURLAlreadySeen, resp.FinalURL, entry.depth, "redirect target already fetched")
				return page, false
			}
			r.visited[key] = true
			r.seen[key] = true
		}
		page.URL = resp.FinalURL
	}

	if !isHTML(resp.ContentType) {
		return r.failPage(page, fmt.Sprintf("unsupported content type %q", resp.ContentType)), true
	}

	base, _ := url.Parse(page.URL)
	parsed, err := textextract.ParseHTML(bytes.NewReader(resp.Body), base)
	if err != nil {
		return r.failPage(page, err.Error()), true
	}

	page.Title = parsed.Title
	page.Content = parsed.Text
	page.Links = parsed.Links
	page.Status = models.PageStatusCompleted
	return page, true
}

func (r *run) failPage(page models.Page, msg string) models.Page {
	page.Status = models.PageStatusError
	page.ErrorMessage = msg
	r.event(EventFetchFailed, page.URL, page.Depth, msg)
	r.c.log.Warn("page fetch failed", "url", page.URL, "depth", page.Depth, "error", msg)
	return page
}

func (r *run) enqueue(link string, depth int) {
	u, err := url.Parse(link)
	if err != nil || !isHTTPScheme(u) || u.Host == "" {
		r.event(EventURLInvalid, link, depth, "unsupported scheme")
		return
	}
	if !r.policy.Allows(u) {
		r.event(EventURLOutsideDomains, link, depth, "")
		return
	}
	key, err := normalizeURL(link)
	if err != nil {
		r.event(EventURLInvalid, link, depth, err.Error())
		return
	}
	if r.seen[key] {
		r.event(EventURLAlreadySeen, link, depth, "")
		return
	}
	// Budget counts pages already fetched plus pages waiting to be fetched.
	if r.fetched+len(r.frontier) >= r.req.MaxPages {
		return
	}
	r.seen[key] = true
	r.frontier = append(r.frontier, frontierEntry{url: link, depth: depth})
}

func (r *run) event(kind EventKind, u string, depth int, reason string) {
	r.result.Events = append(r.result.Events, Event{
		Kind:   kind,
		URL:    u,
		Depth:  depth,
		Reason: reason,
		At:     r.c.now(),
	})
	r.c.log.Debug("crawl event", "kind", kind, "url", u, "depth", depth)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}
