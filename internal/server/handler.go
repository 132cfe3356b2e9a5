// Package server exposes the search engine over HTTP: query and suggest
// endpoints, the catalog record CRUD surface, and operational endpoints
// for cache and synchronizer state.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/internal/search"
	"github.com/bookbridge/searchd/internal/search/cache"
	syncpkg "github.com/bookbridge/searchd/internal/sync"
	"github.com/bookbridge/searchd/pkg/config"
	apperrors "github.com/bookbridge/searchd/pkg/errors"
	"github.com/bookbridge/searchd/pkg/logger"
	"github.com/bookbridge/searchd/pkg/tracing"
)

const maxRecordBody = 1 << 20

// Handler serves the HTTP API. The cache fronts the searcher here rather
// than inside it, so uncached paths (suggest, empty queries after parse
// errors) stay cheap.
type Handler struct {
	searcher  *search.Searcher
	store     catalog.Store
	cache     *cache.QueryCache
	watermark *syncpkg.Watermark
	docs      DocCounter
	cfg       config.SearchConfig
	logger    *slog.Logger
}

// DocCounter reports how many documents are resident in the index.
type DocCounter interface {
	DocCount() int
}

// New creates a Handler. cache may be nil when caching is disabled.
func New(
	searcher *search.Searcher,
	store catalog.Store,
	queryCache *cache.QueryCache,
	watermark *syncpkg.Watermark,
	docs DocCounter,
	cfg config.SearchConfig,
) *Handler {
	return &Handler{
		searcher:  searcher,
		store:     store,
		cache:     queryCache,
		watermark: watermark,
		docs:      docs,
		cfg:       cfg,
		logger:    slog.Default().With("component", "http-handler"),
	}
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.StartSpan(r.Context(), "search", logger.RequestID(r.Context()))
	defer func() {
		span.End()
		span.Log()
	}()
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	req, err := search.ParseRequest(search.RawQuery{
		Query:     q.Get("q"),
		Genre:     q.Get("genre"),
		Language:  q.Get("language"),
		YearMin:   q.Get("year_min"),
		YearMax:   q.Get("year_max"),
		MinRating: q.Get("min_rating"),
		Sort:      q.Get("sort"),
		Page:      q.Get("page"),
		PageSize:  q.Get("page_size"),
	}, h.cfg)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	var result *search.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func() (*search.Result, error) {
			return h.searcher.Search(ctx, req)
		})
	} else {
		result, err = h.searcher.Search(ctx, req)
	}
	if err != nil {
		log.Error("search failed", "query", q.Get("q"), "error", err)
		h.writeErr(w, err)
		return
	}

	span.SetAttr("cache_hit", cacheHit)
	span.SetAttr("returned", len(result.Results))

	log.Info("search completed",
		"query", q.Get("q"),
		"returned", len(result.Results),
		"total", result.TotalEstimate,
		"cache_hit", cacheHit,
		"stale", result.Stale,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Suggest handles GET /api/v1/suggest.
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefix := r.URL.Query().Get("q")
	if strings.TrimSpace(prefix) == "" {
		h.writeErr(w, apperrors.Validationf("query parameter 'q' is required"))
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeErr(w, apperrors.Validationf("limit must be a positive integer"))
			return
		}
		if parsed > h.cfg.MaxPageSize {
			parsed = h.cfg.MaxPageSize
		}
		limit = parsed
	}

	suggestions, err := h.searcher.Suggest(ctx, prefix, limit)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prefix":      prefix,
		"suggestions": suggestions,
	})
}

// recordPayload is the write-side wire format of a catalog record.
type recordPayload struct {
	Kind       catalog.Kind       `json:"kind"`
	Attributes catalog.Attributes `json:"attributes"`
}

// PutRecord handles PUT /api/v1/records/{id}.
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBody))
	if err != nil {
		h.writeErr(w, apperrors.Validationf("reading request body: %v", err))
		return
	}
	var payload recordPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.writeErr(w, apperrors.Validationf("malformed record body: %v", err))
		return
	}

	rec := &catalog.Record{
		ID:    id,
		Kind:  payload.Kind,
		Attrs: payload.Attributes,
	}
	if err := rec.Validate(); err != nil {
		h.writeErr(w, err)
		return
	}

	revision, err := h.store.Put(ctx, rec)
	if err != nil {
		logger.FromContext(ctx).Error("record put failed", "record_id", id, "error", err)
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"revision": revision,
	})
}

// GetRecord handles GET /api/v1/records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/v1/records/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	revision, err := h.store.Delete(ctx, id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"revision": revision,
		"deleted":  true,
	})
}

// Status handles GET /api/v1/status: synchronizer position and lag.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	head, err := h.store.CurrentRevision(ctx)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	cursor := h.watermark.Cursor()
	var lag uint64
	if head > cursor {
		lag = head - cursor
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"store_revision": head,
		"index_cursor":   cursor,
		"lag":            lag,
		"documents":      h.docs.DocCount(),
		"staleness_ms":   h.watermark.Staleness().Milliseconds(),
	})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
		msg = "request timed out"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
