package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/assistantkb/internal/assistant"
	"github.com/nikhilbhutani/assistantkb/internal/config"
	"github.com/nikhilbhutani/assistantkb/internal/models"
	"github.com/nikhilbhutani/assistantkb/internal/retrieval"
	"github.com/nikhilbhutani/assistantkb/internal/vectorstore"
)

const maxSearchLimit = 100

type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) ([]models.SearchResult, error)
	HybridSearch(ctx context.Context, q retrieval.HybridQuery) ([]models.SearchResult, error)
	Related(ctx context.Context, assistantID, chunkID uuid.UUID, limit int, threshold float64) ([]models.SearchResult, error)
}

type SearchHandler struct {
	engine   Searcher
	defaults config.SearchConfig
}

func NewSearchHandler(engine Searcher, defaults config.SearchConfig) *SearchHandler {
	return &SearchHandler{engine: engine, defaults: defaults}
}

type searchRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Threshold      *float64 `json:"threshold"`
	Types          []string `json:"types"`
	Hybrid         bool     `json:"hybrid"`
	SemanticWeight *float64 `json:"semantic_weight"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit < 0 || req.Limit > maxSearchLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	types := make([]models.DocType, 0, len(req.Types))
	for _, s := range req.Types {
		t, ok := models.ParseDocType(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown document type: "+s)
			return
		}
		types = append(types, t)
	}

	ctx, cancel := h.searchContext(r)
	defer cancel()

	assistantID := assistant.IDFromContext(ctx)
	var (
		results []models.SearchResult
		err     error
	)
	if req.Hybrid {
		weight := h.defaults.SemanticWeight
		if req.SemanticWeight != nil {
			weight = *req.SemanticWeight
		}
		results, err = h.engine.HybridSearch(ctx, retrieval.HybridQuery{
			AssistantID:    assistantID,
			Text:           req.Query,
			Limit:          req.Limit,
			Types:          types,
			SemanticWeight: weight,
		})
	} else {
		threshold := h.defaults.Threshold
		if req.Threshold != nil {
			threshold = *req.Threshold
		}
		results, err = h.engine.Search(ctx, retrieval.Query{
			AssistantID: assistantID,
			Text:        req.Query,
			Limit:       req.Limit,
			Threshold:   threshold,
			Types:       types,
		})
	}
	if err != nil {
		writeSearchError(w, err)
		return
	}

	writeResults(w, results)
}

func (h *SearchHandler) Related(w http.ResponseWriter, r *http.Request) {
	chunkID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk ID")
		return
	}
	limit := retrieval.DefaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxSearchLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
	}

	ctx, cancel := h.searchContext(r)
	defer cancel()

	results, err := h.engine.Related(ctx, assistant.IDFromContext(ctx), chunkID, limit, h.defaults.RelatedThreshold)
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeResults(w, results)
}

// searchContext bounds a search by the configured timeout. A zero timeout
// leaves the request context as is.
func (h *SearchHandler) searchContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.defaults.Timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.defaults.Timeout)
}

func writeResults(w http.ResponseWriter, results []models.SearchResult) {
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, retrieval.ErrEmptyQuery), errors.Is(err, retrieval.ErrInvalidWeight):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, retrieval.ErrRetrievalUnavailable):
		slog.Warn("search failed", "error", err)
		writeError(w, http.StatusBadGateway, retrieval.ErrRetrievalUnavailable.Error())
	case errors.Is(err, vectorstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "chunk not found")
	default:
		slog.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
	}
}
