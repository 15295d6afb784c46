// Package mirror maintains a best-effort local duplicate of per-file
// counters and bounded interaction histories, so dashboards keep working
// while the event store is unreachable.
//
// The mirror is a cache over the event store, never a source of truth:
// every counter must be reconstructible by replaying the event log, and
// the reconciler periodically replaces counters with store-derived values.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetrack/sharetrack/internal/aggregator"
	"github.com/sharetrack/sharetrack/internal/model"
)

const (
	// DefaultHistoryLimit bounds each per-file history list.
	DefaultHistoryLimit = 1000

	// FallbackTopFilesLimit caps the ranking in mirror-served reports.
	// Smaller than the store-backed cap on purpose: the mirror keeps
	// the original dashboard's local-data behavior.
	FallbackTopFilesLimit = 8

	updateQueueSize = 1024
)

type fileState struct {
	snap            model.FileSnapshot
	share, download *ring
	view            *ring
}

// Mirror holds per-file counters behind a single-writer update queue.
// Concurrent recorders enqueue updates; one goroutine applies them, so
// racing actions on the same counter can never lose increments.
type Mirror struct {
	logger       *slog.Logger
	historyLimit int

	mu    sync.RWMutex
	files map[string]*fileState
	order []string // file discovery order, for deterministic iteration

	sendMu   sync.Mutex
	draining bool
	updates  chan func()
	done     chan struct{}
}

// New creates a Mirror and starts its update loop.
func New(historyLimit int, logger *slog.Logger) *Mirror {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	m := &Mirror{
		logger:       logger.With("component", "mirror"),
		historyLimit: historyLimit,
		files:        make(map[string]*fileState),
		updates:      make(chan func(), updateQueueSize),
		done:         make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Mirror) loop() {
	defer close(m.done)
	for fn := range m.updates {
		m.mu.Lock()
		fn()
		m.mu.Unlock()
	}
}

// enqueue hands an update to the writer goroutine. Updates arriving after
// shutdown began are dropped.
func (m *Mirror) enqueue(fn func()) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.draining {
		m.logger.Warn("mirror draining, update dropped")
		return
	}
	m.updates <- fn
}

// Shutdown stops the update loop after draining queued updates.
func (m *Mirror) Shutdown(ctx context.Context) error {
	m.sendMu.Lock()
	if m.draining {
		m.sendMu.Unlock()
		return nil
	}
	m.draining = true
	close(m.updates)
	m.sendMu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply records one interaction: the matching counter is incremented and
// an entry appended to that file's bounded history.
func (m *Mirror) Apply(event model.Event) {
	m.enqueue(func() {
		state := m.stateLocked(event.FileID)
		if state.snap.Name == "" {
			state.snap.Name = event.FileName
		}
		if state.snap.URL == "" {
			state.snap.URL = event.FileURL
		}
		if event.Timestamp.After(state.snap.LastAccessed) {
			state.snap.LastAccessed = event.Timestamp
		}

		entry := model.HistoryEntry{Timestamp: event.Timestamp, Source: event.Source}
		switch event.Action {
		case model.ActionShare:
			state.snap.ShareCount++
			state.share.Append(entry)
		case model.ActionDownload:
			state.snap.DownloadCount++
			state.download.Append(entry)
		case model.ActionView:
			state.snap.ViewCount++
			state.view.Append(entry)
		}
	})
}

// Replace overwrites counters with store-derived values, keeping local
// histories. Used by the reconciler so read-through staleness is bounded
// by the reconcile interval.
func (m *Mirror) Replace(snapshots []model.FileSnapshot) {
	m.enqueue(func() {
		for _, snap := range snapshots {
			state := m.stateLocked(snap.ID)
			if snap.Name != "" {
				state.snap.Name = snap.Name
			}
			if snap.URL != "" {
				state.snap.URL = snap.URL
			}
			state.snap.ShareCount = snap.ShareCount
			state.snap.DownloadCount = snap.DownloadCount
			state.snap.ViewCount = snap.ViewCount
			if snap.LastAccessed.After(state.snap.LastAccessed) {
				state.snap.LastAccessed = snap.LastAccessed
			}
		}
	})
}

// Restore seeds the mirror from persisted snapshots, histories included.
func (m *Mirror) Restore(snapshots []model.FileSnapshot) {
	m.enqueue(func() {
		for _, snap := range snapshots {
			state := m.stateLocked(snap.ID)
			copied := snap
			copied.ShareHistory = nil
			copied.DownloadHistory = nil
			copied.ViewHistory = nil
			state.snap = copied
			for _, e := range snap.ShareHistory {
				state.share.Append(e)
			}
			for _, e := range snap.DownloadHistory {
				state.download.Append(e)
			}
			for _, e := range snap.ViewHistory {
				state.view.Append(e)
			}
		}
	})
}

// stateLocked returns the file state, creating it on first touch.
// Caller must hold mu.
func (m *Mirror) stateLocked(fileID string) *fileState {
	state, ok := m.files[fileID]
	if !ok {
		state = &fileState{
			snap:     model.FileSnapshot{ID: fileID},
			share:    newRing(m.historyLimit),
			download: newRing(m.historyLimit),
			view:     newRing(m.historyLimit),
		}
		m.files[fileID] = state
		m.order = append(m.order, fileID)
	}
	return state
}

// Wait blocks until all updates enqueued so far have been applied.
func (m *Mirror) Wait() {
	applied := make(chan struct{})
	m.enqueue(func() { close(applied) })

	m.sendMu.Lock()
	draining := m.draining
	m.sendMu.Unlock()
	if draining {
		return
	}
	<-applied
}

// Snapshot returns a copy of one file's snapshot.
func (m *Mirror) Snapshot(fileID string) (model.FileSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.files[fileID]
	if !ok {
		return model.FileSnapshot{}, false
	}
	return m.materializeLocked(state), true
}

// Snapshots returns copies of all snapshots in file discovery order.
func (m *Mirror) Snapshots() []model.FileSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.FileSnapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.materializeLocked(m.files[id]))
	}
	return out
}

func (m *Mirror) materializeLocked(state *fileState) model.FileSnapshot {
	snap := state.snap
	snap.ShareHistory = state.share.List()
	snap.DownloadHistory = state.download.List()
	snap.ViewHistory = state.view.List()
	return snap
}

// FallbackReport computes a dashboard report from local histories only.
// Served when the event store is unreachable; marked degraded and capped
// at the smaller local top-files limit.
func (m *Mirror) FallbackReport(period aggregator.Period, now time.Time, loc *time.Location) model.AggregateReport {
	report := aggregator.Aggregate(period, now, loc, m.events())
	if len(report.TopFiles) > FallbackTopFilesLimit {
		report.TopFiles = report.TopFiles[:FallbackTopFilesLimit]
	}
	report.Degraded = true
	return report
}

// FallbackFileReport computes a per-file report from local histories only.
func (m *Mirror) FallbackFileReport(fileID string, period aggregator.Period, now time.Time, loc *time.Location) model.FileReport {
	return aggregator.AggregateFile(fileID, period, now, loc, m.events())
}

// events rebuilds an event sequence from bounded histories. Order is
// file discovery order, then history order, so fallback aggregation is
// deterministic.
func (m *Mirror) events() []model.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Event
	for _, id := range m.order {
		state := m.files[id]
		for _, e := range state.share.List() {
			out = append(out, model.Event{
				FileID:    id,
				FileName:  state.snap.Name,
				Action:    model.ActionShare,
				Source:    e.Source,
				Timestamp: e.Timestamp,
			})
		}
		for _, e := range state.download.List() {
			out = append(out, model.Event{FileID: id, Action: model.ActionDownload, Timestamp: e.Timestamp})
		}
		for _, e := range state.view.List() {
			out = append(out, model.Event{FileID: id, Action: model.ActionView, Timestamp: e.Timestamp})
		}
	}
	return out
}
