package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncTrackAccepted is a no-op.
func (n *NoopRecorder) IncTrackAccepted(action string) {}

// IncTrackRejected is a no-op.
func (n *NoopRecorder) IncTrackRejected(reason string) {}

// IncEventRecorded is a no-op.
func (n *NoopRecorder) IncEventRecorded(status string) {}

// IncStatsServed is a no-op.
func (n *NoopRecorder) IncStatsServed(source string) {}

// IncReplayQueued is a no-op.
func (n *NoopRecorder) IncReplayQueued(status string) {}

// IncReplayProcessed is a no-op.
func (n *NoopRecorder) IncReplayProcessed(status string) {}

// ObserveReplayBatchSize is a no-op.
func (n *NoopRecorder) ObserveReplayBatchSize(size int) {}

// ObserveReplayBatchDuration is a no-op.
func (n *NoopRecorder) ObserveReplayBatchDuration(duration time.Duration) {}

// SetReplayQueueDepth is a no-op.
func (n *NoopRecorder) SetReplayQueueDepth(depth int64) {}

// ObserveReplayLag is a no-op.
func (n *NoopRecorder) ObserveReplayLag(lag time.Duration) {}
