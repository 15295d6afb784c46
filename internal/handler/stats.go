package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharetrack/sharetrack/internal/aggregator"
	"github.com/sharetrack/sharetrack/internal/cache"
	"github.com/sharetrack/sharetrack/internal/handler/dto"
	"github.com/sharetrack/sharetrack/internal/metrics"
	"github.com/sharetrack/sharetrack/internal/model"
)

// EventLister reads events back from the event store for aggregation.
type EventLister interface {
	ListSince(ctx context.Context, since time.Time, userID string) ([]model.Event, error)
	ListFileSince(ctx context.Context, fileID string, since time.Time) ([]model.Event, error)
}

// ReportCache caches computed reports.
type ReportCache interface {
	GetReport(ctx context.Context, key string) (*model.AggregateReport, error)
	SetReport(ctx context.Context, key string, report *model.AggregateReport, ttl time.Duration) error
	GetFileReport(ctx context.Context, key string) (*model.FileReport, error)
	SetFileReport(ctx context.Context, key string, report *model.FileReport, ttl time.Duration) error
}

// FallbackSource serves reports from local state when the store is down.
type FallbackSource interface {
	FallbackReport(period aggregator.Period, now time.Time, loc *time.Location) model.AggregateReport
	FallbackFileReport(fileID string, period aggregator.Period, now time.Time, loc *time.Location) model.FileReport
}

// StatsHandler serves aggregate and per-file usage reports.
//
// Reads go cache first, then the event store, then fall back to the
// local mirror with a degraded marker when the store is unreachable.
type StatsHandler struct {
	store    EventLister
	cache    ReportCache
	fallback FallbackSource
	logger   *slog.Logger
	metrics  metrics.Recorder
	loc      *time.Location
	cacheTTL time.Duration
	now      func() time.Time
}

// NewStatsHandler creates a new StatsHandler. cache and fallback may be
// nil to disable caching and mirror fallback respectively.
func NewStatsHandler(store EventLister, reportCache ReportCache, fallback FallbackSource, logger *slog.Logger, recorder metrics.Recorder, loc *time.Location) *StatsHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &StatsHandler{
		store:    store,
		cache:    reportCache,
		fallback: fallback,
		logger:   logger.With("component", "handler.stats"),
		metrics:  recorder,
		loc:      loc,
		cacheTTL: cache.DefaultReportTTL,
		now:      time.Now,
	}
}

// SetCacheTTL overrides the report cache TTL.
func (h *StatsHandler) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		h.cacheTTL = ttl
	}
}

// SetClock overrides the handler clock. Tests only.
func (h *StatsHandler) SetClock(now func() time.Time) {
	if now != nil {
		h.now = now
	}
}

// GetStats handles GET /stats.
//
// Query parameters: period (day|week|month|year, default week) and
// userId (optional filter).
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	period := aggregator.ParsePeriod(r.URL.Query().Get("period"))
	userID := r.URL.Query().Get("userId")

	key := cache.StatsKey(period.String(), userID)
	if h.cache != nil {
		if cached, err := h.cache.GetReport(r.Context(), key); err == nil {
			h.metrics.IncStatsServed("cache")
			writeJSON(w, http.StatusOK, cached)
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("report cache read failed", "key", key, "error", err)
		}
	}

	now := h.now()
	events, err := h.store.ListSince(r.Context(), period.WindowStart(now), userID)
	if err != nil {
		h.serveFallback(w, r, period, now, userID, err)
		return
	}

	report := aggregator.Aggregate(period, now, h.loc, events)

	if h.cache != nil {
		if err := h.cache.SetReport(r.Context(), key, &report, h.cacheTTL); err != nil {
			h.logger.Warn("report cache write failed", "key", key, "error", err)
		}
	}

	h.metrics.IncStatsServed("store")
	writeJSON(w, http.StatusOK, report)
}

// GetFileStats handles GET /file/{fileId}.
func (h *StatsHandler) GetFileStats(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")
	if fileID == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "File ID is required")
		return
	}

	period := aggregator.ParsePeriod(r.URL.Query().Get("period"))

	key := cache.FileStatsKey(fileID, period.String())
	if h.cache != nil {
		if cached, err := h.cache.GetFileReport(r.Context(), key); err == nil {
			h.metrics.IncStatsServed("cache")
			writeJSON(w, http.StatusOK, cached)
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("file report cache read failed", "key", key, "error", err)
		}
	}

	now := h.now()
	events, err := h.store.ListFileSince(r.Context(), fileID, period.WindowStart(now))
	if err != nil {
		h.serveFileFallback(w, r, fileID, period, now, err)
		return
	}

	report := aggregator.AggregateFile(fileID, period, now, h.loc, events)

	if h.cache != nil {
		if err := h.cache.SetFileReport(r.Context(), key, &report, h.cacheTTL); err != nil {
			h.logger.Warn("file report cache write failed", "key", key, "error", err)
		}
	}

	h.metrics.IncStatsServed("store")
	writeJSON(w, http.StatusOK, report)
}

// serveFallback answers a stats request from the mirror when the store
// read failed. User-filtered requests cannot be served locally; the
// mirror keeps per-file counters, not per-user ones.
func (h *StatsHandler) serveFallback(w http.ResponseWriter, r *http.Request, period aggregator.Period, now time.Time, userID string, cause error) {
	h.logger.Error("store read failed, serving from mirror", "period", period.String(), "error", cause)

	if h.fallback == nil || userID != "" {
		h.writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Analytics are temporarily unavailable")
		return
	}

	report := h.fallback.FallbackReport(period, now, h.loc)
	h.metrics.IncStatsServed("mirror")
	writeJSON(w, http.StatusOK, report)
}

func (h *StatsHandler) serveFileFallback(w http.ResponseWriter, r *http.Request, fileID string, period aggregator.Period, now time.Time, cause error) {
	h.logger.Error("store read failed, serving file report from mirror", "file_id", fileID, "error", cause)

	if h.fallback == nil {
		h.writeError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Analytics are temporarily unavailable")
		return
	}

	report := h.fallback.FallbackFileReport(fileID, period, now, h.loc)
	h.metrics.IncStatsServed("mirror")
	writeJSON(w, http.StatusOK, report)
}

// writeError writes a JSON error response.
func (h *StatsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
