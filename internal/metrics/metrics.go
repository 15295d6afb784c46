// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Tracking pipeline metrics
	IncTrackAccepted(action string)
	IncTrackRejected(reason string)                // reason: "invalid_action", "missing_file_id"
	IncEventRecorded(status string)                // status: "stored" or "deferred"

	// Query facade metrics
	IncStatsServed(source string)                  // source: "store", "cache", "mirror"

	// Replay queue metrics
	IncReplayQueued(status string)                 // status: "queued" or "dropped"
	IncReplayProcessed(status string)              // status: "success", "failed", "dead_lettered"
	ObserveReplayBatchSize(size int)
	ObserveReplayBatchDuration(duration time.Duration)
	SetReplayQueueDepth(depth int64)
	ObserveReplayLag(lag time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
