package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/sharetrack/sharetrack/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "sharetrack_track_accepted_total", "action", snap.TrackAccepted)
	writeLabeled(w, "sharetrack_track_rejected_total", "reason", snap.TrackRejected)
	writeLabeled(w, "sharetrack_events_recorded_total", "status", snap.EventsRecorded)
	writeLabeled(w, "sharetrack_stats_served_total", "source", snap.StatsServed)
	writeLabeled(w, "sharetrack_replay_queued_total", "status", snap.ReplayQueued)
	writeLabeled(w, "sharetrack_replay_processed_total", "status", snap.ReplayProcessed)

	writeMetric(w, "sharetrack_replay_batches_total %d\n", snap.ReplayBatchCount)
	writeMetric(w, "sharetrack_replay_batch_events_total %d\n", snap.ReplayBatchTotalSize)
	writeMetric(w, "sharetrack_replay_batch_duration_seconds_sum %.6f\n", float64(snap.ReplayBatchDurationNs)/1e9)
	writeMetric(w, "sharetrack_replay_lag_seconds_count %d\n", snap.ReplayLagCount)
	writeMetric(w, "sharetrack_replay_lag_seconds_sum %.6f\n", float64(snap.ReplayLagTotalNs)/1e9)
	writeMetric(w, "sharetrack_replay_queue_depth %d\n", snap.ReplayQueueDepth)
}

func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
