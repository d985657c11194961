// Package handler exposes symbol search, lookup, and index administration
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/reload"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/tracing"
)

// Searches slower than this log their span tree at warn level.
const slowQueryThreshold = 50 * time.Millisecond

// QueryExecutor answers plans against the active index. *executor.Executor
// satisfies it.
type QueryExecutor interface {
	Execute(ctx context.Context, plan *parser.Plan, limit int) (*executor.SearchResult, error)
	Lookup(ctx context.Context, name string) (*executor.Hit, uint64, error)
	Stats() executor.IndexStats
}

// Reloader replaces the active index on demand.
type Reloader interface {
	Reload(ctx context.Context, trigger string) (symbolindex.Version, error)
}

// Options wires the optional collaborators. Zero values disable them.
type Options struct {
	Cache    *cache.QueryCache
	Tracker  analytics.Tracker
	Metrics  *metrics.Metrics
	Reloader Reloader
	// Admin wraps the mutating endpoints, e.g. with an auth check.
	Admin        func(http.Handler) http.Handler
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	executor     QueryExecutor
	cache        *cache.QueryCache
	tracker      analytics.Tracker
	metrics      *metrics.Metrics
	reloader     Reloader
	admin        func(http.Handler) http.Handler
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(exec QueryExecutor, opts Options) *Handler {
	h := &Handler{
		executor:     exec,
		cache:        opts.Cache,
		tracker:      opts.Tracker,
		metrics:      opts.Metrics,
		reloader:     opts.Reloader,
		admin:        opts.Admin,
		defaultLimit: opts.DefaultLimit,
		maxResults:   opts.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
	if h.defaultLimit <= 0 {
		h.defaultLimit = executor.DefaultLimit
	}
	if h.maxResults <= 0 {
		h.maxResults = 200
	}
	h.defaultLimit = min(h.defaultLimit, h.maxResults)
	if h.admin == nil {
		h.admin = func(next http.Handler) http.Handler { return next }
	}
	return h
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/symbols/search", h.Search)
	mux.HandleFunc("GET /api/v1/symbols/lookup", h.Lookup)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.Handle("POST /api/v1/index/reload", h.admin(http.HandlerFunc(h.Reload)))
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", h.admin(http.HandlerFunc(h.CacheInvalidate)))
}

// Search answers GET /api/v1/symbols/search?q=&mode=&limit=. An empty q
// lists the index from the top.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "symbols.search", requestID)
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r)
	if err != nil {
		span.End()
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	plan := parser.Parse(query, r.URL.Query().Get("mode"))
	span.SetAttr("mode", string(plan.Mode))

	result, cacheHit, err := h.execute(ctx, plan, limit)
	span.End()
	latency := time.Since(start)
	if err != nil {
		h.observe(plan.Mode, "error", cacheHit, latency, 0)
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "query", query, "mode", plan.Mode, "status", status, "error", err)
		h.writeError(w, status, publicMessage(status, err))
		return
	}

	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero_result"
	}
	h.observe(plan.Mode, resultType, cacheHit, latency, len(result.Results))
	span.LogSlow(log, slowQueryThreshold)
	log.Info("search completed",
		"query", query,
		"mode", plan.Mode,
		"scope", plan.Scope,
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_us", latency.Microseconds(),
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.QueryEvent{
			Type:          analytics.EventQuery,
			Query:         query,
			Text:          plan.Text,
			Mode:          string(plan.Mode),
			Scope:         plan.Scope,
			Generation:    result.Generation,
			TotalHits:     result.TotalHits,
			Returned:      len(result.Results),
			LatencyMicros: latency.Microseconds(),
			CacheHit:      cacheHit,
			Timestamp:     time.Now().UTC(),
			RequestID:     requestID,
		})
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) execute(ctx context.Context, plan *parser.Plan, limit int) (*executor.SearchResult, bool, error) {
	stats := h.executor.Stats()
	if h.cache == nil || !stats.Ready {
		result, err := h.executor.Execute(ctx, plan, limit)
		return result, false, err
	}
	return h.cache.GetOrCompute(ctx, stats.Generation, plan, limit, func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, plan, limit)
	})
}

func (h *Handler) parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.maxResults), nil
}

func (h *Handler) observe(mode parser.Mode, resultType string, cacheHit bool, latency time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	h.metrics.SymbolQueriesTotal.WithLabelValues(string(mode), resultType).Inc()
	h.metrics.SymbolQueryLatency.WithLabelValues(string(mode), cacheStatus).Observe(latency.Seconds())
	if resultType == "error" {
		return
	}
	h.metrics.SymbolResultsCount.WithLabelValues(string(mode)).Observe(float64(returned))
	if h.cache != nil {
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
}

type lookupResponse struct {
	Generation uint64        `json:"generation"`
	Symbol     *executor.Hit `json:"symbol"`
}

// Lookup answers GET /api/v1/symbols/lookup?name= with the single entry
// whose key equals the normalized name.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if symbolindex.Normalize(name) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'name' is required")
		return
	}
	hit, generation, err := h.executor.Lookup(r.Context(), name)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("lookup failed", "name", name, "error", err)
		}
		h.writeError(w, status, publicMessage(status, err))
		return
	}
	h.writeJSON(w, http.StatusOK, lookupResponse{Generation: generation, Symbol: hit})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.executor.Stats())
}

// Reload answers POST /api/v1/index/reload. A failed reload keeps the
// current index and reports why.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reloading is disabled")
		return
	}
	v, err := h.reloader.Reload(r.Context(), reload.TriggerManual)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		h.writeError(w, status, fmt.Sprintf("reload failed, keeping generation %d: %v",
			h.executor.Stats().Generation, err))
		return
	}
	h.writeJSON(w, http.StatusOK, executor.IndexStats{
		Ready:      true,
		Generation: v.Generation,
		Entries:    v.Index.Len(),
		Targets:    v.Index.TargetCount(),
		LoadedAt:   v.LoadedAt,
	})
}

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

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// publicMessage hides internal error details behind a generic message.
func publicMessage(status int, err error) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
