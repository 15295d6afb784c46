package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sharetrack/sharetrack/internal/aggregator"
	"github.com/sharetrack/sharetrack/internal/cache"
	"github.com/sharetrack/sharetrack/internal/model"
)

var statsNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeLister struct {
	events []model.Event
	err    error

	lastSince  time.Time
	lastUserID string
	lastFileID string
}

func (f *fakeLister) ListSince(_ context.Context, since time.Time, userID string) ([]model.Event, error) {
	f.lastSince = since
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeLister) ListFileSince(_ context.Context, fileID string, since time.Time) ([]model.Event, error) {
	f.lastFileID = fileID
	f.lastSince = since
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeReportCache struct {
	reports     map[string]*model.AggregateReport
	fileReports map[string]*model.FileReport
	sets        int
}

func newFakeReportCache() *fakeReportCache {
	return &fakeReportCache{
		reports:     make(map[string]*model.AggregateReport),
		fileReports: make(map[string]*model.FileReport),
	}
}

func (f *fakeReportCache) GetReport(_ context.Context, key string) (*model.AggregateReport, error) {
	if report, ok := f.reports[key]; ok {
		return report, nil
	}
	return nil, cache.ErrCacheMiss
}

func (f *fakeReportCache) SetReport(_ context.Context, key string, report *model.AggregateReport, _ time.Duration) error {
	f.reports[key] = report
	f.sets++
	return nil
}

func (f *fakeReportCache) GetFileReport(_ context.Context, key string) (*model.FileReport, error) {
	if report, ok := f.fileReports[key]; ok {
		return report, nil
	}
	return nil, cache.ErrCacheMiss
}

func (f *fakeReportCache) SetFileReport(_ context.Context, key string, report *model.FileReport, _ time.Duration) error {
	f.fileReports[key] = report
	f.sets++
	return nil
}

type fakeFallback struct {
	called bool
}

func (f *fakeFallback) FallbackReport(period aggregator.Period, now time.Time, loc *time.Location) model.AggregateReport {
	f.called = true
	report := aggregator.Aggregate(period, now, loc, nil)
	report.Degraded = true
	return report
}

func (f *fakeFallback) FallbackFileReport(fileID string, period aggregator.Period, now time.Time, loc *time.Location) model.FileReport {
	f.called = true
	return aggregator.AggregateFile(fileID, period, now, loc, nil)
}

func statsEvent(fileID, source string, at time.Time) model.Event {
	return model.Event{
		ID:        "01J0000000000000000000TEST",
		EventID:   fileID + at.Format("150405"),
		FileID:    fileID,
		Action:    model.ActionShare,
		Source:    source,
		Timestamp: at,
	}
}

func newStatsHandler(store *fakeLister, reportCache ReportCache, fallback FallbackSource) *StatsHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewStatsHandler(store, reportCache, fallback, logger, nil, time.UTC)
	h.SetClock(func() time.Time { return statsNow })
	return h
}

func newStatsRouter(h *StatsHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/stats", h.GetStats)
	r.Get("/file/{fileId}", h.GetFileStats)
	return r
}

func getJSON(t *testing.T, router http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec
}

func TestStatsHandler_GetStats(t *testing.T) {
	store := &fakeLister{events: []model.Event{
		statsEvent("file-1", "whatsapp", statsNow.Add(-2*time.Hour)),
		statsEvent("file-1", "whatsapp", statsNow.Add(-1*time.Hour)),
		statsEvent("file-2", "email", statsNow.Add(-30*time.Minute)),
	}}
	h := newStatsHandler(store, newFakeReportCache(), nil)
	router := newStatsRouter(h)

	var report model.AggregateReport
	rec := getJSON(t, router, "/stats?period=week", &report)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if report.TotalShares != 3 {
		t.Errorf("totalShares = %d, want 3", report.TotalShares)
	}
	if report.UniqueFiles != 2 {
		t.Errorf("uniqueFiles = %d, want 2", report.UniqueFiles)
	}
	if report.Period != "week" {
		t.Errorf("period = %q, want week", report.Period)
	}
	if report.Degraded {
		t.Error("expected degraded=false when served from store")
	}

	wantSince := aggregator.PeriodWeek.WindowStart(statsNow)
	if !store.lastSince.Equal(wantSince) {
		t.Errorf("store queried since %v, want %v", store.lastSince, wantSince)
	}
}

func TestStatsHandler_GetStats_DefaultPeriod(t *testing.T) {
	store := &fakeLister{}
	h := newStatsHandler(store, nil, nil)
	router := newStatsRouter(h)

	var report model.AggregateReport
	rec := getJSON(t, router, "/stats?period=bogus", &report)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if report.Period != "week" {
		t.Errorf("period = %q, want week fallback", report.Period)
	}
}

func TestStatsHandler_GetStats_UserFilter(t *testing.T) {
	store := &fakeLister{}
	h := newStatsHandler(store, nil, nil)
	router := newStatsRouter(h)

	rec := getJSON(t, router, "/stats?period=month&userId=user-1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if store.lastUserID != "user-1" {
		t.Errorf("store queried with userId %q, want user-1", store.lastUserID)
	}
}

func TestStatsHandler_GetStats_CacheHit(t *testing.T) {
	store := &fakeLister{err: errors.New("should not be called")}
	reportCache := newFakeReportCache()
	reportCache.reports[cache.StatsKey("week", "")] = &model.AggregateReport{
		TotalShares: 42,
		Period:      "week",
	}
	h := newStatsHandler(store, reportCache, nil)
	router := newStatsRouter(h)

	var report model.AggregateReport
	rec := getJSON(t, router, "/stats", &report)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if report.TotalShares != 42 {
		t.Errorf("totalShares = %d, want cached 42", report.TotalShares)
	}
}

func TestStatsHandler_GetStats_CachesResult(t *testing.T) {
	store := &fakeLister{}
	reportCache := newFakeReportCache()
	h := newStatsHandler(store, reportCache, nil)
	router := newStatsRouter(h)

	getJSON(t, router, "/stats?period=day", nil)

	if reportCache.sets != 1 {
		t.Errorf("cache writes = %d, want 1", reportCache.sets)
	}
	if _, ok := reportCache.reports[cache.StatsKey("day", "")]; !ok {
		t.Error("expected report cached under stats:day")
	}
}

func TestStatsHandler_GetStats_MirrorFallback(t *testing.T) {
	store := &fakeLister{err: errors.New("connection refused")}
	fallback := &fakeFallback{}
	h := newStatsHandler(store, nil, fallback)
	router := newStatsRouter(h)

	var report model.AggregateReport
	rec := getJSON(t, router, "/stats", &report)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !fallback.called {
		t.Error("expected mirror fallback to be used")
	}
	if !report.Degraded {
		t.Error("expected degraded=true when served from mirror")
	}
}

func TestStatsHandler_GetStats_UserFilterNoFallback(t *testing.T) {
	store := &fakeLister{err: errors.New("connection refused")}
	fallback := &fakeFallback{}
	h := newStatsHandler(store, nil, fallback)
	router := newStatsRouter(h)

	rec := getJSON(t, router, "/stats?userId=user-1", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if fallback.called {
		t.Error("mirror cannot serve user-filtered reports")
	}
}

func TestStatsHandler_GetStats_NoFallbackConfigured(t *testing.T) {
	store := &fakeLister{err: errors.New("connection refused")}
	h := newStatsHandler(store, nil, nil)
	router := newStatsRouter(h)

	rec := getJSON(t, router, "/stats", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestStatsHandler_GetFileStats(t *testing.T) {
	store := &fakeLister{events: []model.Event{
		statsEvent("file-1", "whatsapp", statsNow.Add(-2*time.Hour)),
		{
			EventID:   "dl-1",
			FileID:    "file-1",
			Action:    model.ActionDownload,
			Source:    "direct_copy",
			Timestamp: statsNow.Add(-1 * time.Hour),
		},
	}}
	h := newStatsHandler(store, newFakeReportCache(), nil)
	router := newStatsRouter(h)

	var report model.FileReport
	rec := getJSON(t, router, "/file/file-1?period=month", &report)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.lastFileID != "file-1" {
		t.Errorf("store queried fileId %q, want file-1", store.lastFileID)
	}
	if report.TotalShares != 1 {
		t.Errorf("totalShares = %d, want 1", report.TotalShares)
	}
	if report.TotalDownloads != 1 {
		t.Errorf("totalDownloads = %d, want 1", report.TotalDownloads)
	}
	if report.Period != "month" {
		t.Errorf("period = %q, want month", report.Period)
	}
}

func TestStatsHandler_GetFileStats_MirrorFallback(t *testing.T) {
	store := &fakeLister{err: errors.New("connection refused")}
	fallback := &fakeFallback{}
	h := newStatsHandler(store, nil, fallback)
	router := newStatsRouter(h)

	rec := getJSON(t, router, "/file/file-1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !fallback.called {
		t.Error("expected mirror fallback to be used")
	}
}
