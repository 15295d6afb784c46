package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	TrackAccepted        map[string]uint64
	TrackRejected        map[string]uint64
	EventsRecorded       map[string]uint64
	StatsServed          map[string]uint64
	ReplayQueued         map[string]uint64
	ReplayProcessed      map[string]uint64
	ReplayBatchCount      uint64
	ReplayBatchTotalSize  uint64
	ReplayBatchDurationNs uint64
	ReplayLagCount        uint64
	ReplayLagTotalNs      uint64
	ReplayQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu              sync.Mutex
	trackAccepted   map[string]uint64
	trackRejected   map[string]uint64
	eventsRecorded  map[string]uint64
	statsServed     map[string]uint64
	replayQueued    map[string]uint64
	replayProcessed map[string]uint64

	replayBatchCount      uint64
	replayBatchTotalSize  uint64
	replayBatchDurationNs uint64
	replayLagCount        uint64
	replayLagTotalNs      uint64
	replayQueueDepth      int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		trackAccepted:   make(map[string]uint64),
		trackRejected:   make(map[string]uint64),
		eventsRecorded:  make(map[string]uint64),
		statsServed:     make(map[string]uint64),
		replayQueued:    make(map[string]uint64),
		replayProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TrackAccepted:        copyCounts(m.trackAccepted),
		TrackRejected:        copyCounts(m.trackRejected),
		EventsRecorded:       copyCounts(m.eventsRecorded),
		StatsServed:          copyCounts(m.statsServed),
		ReplayQueued:         copyCounts(m.replayQueued),
		ReplayProcessed:      copyCounts(m.replayProcessed),
		ReplayBatchCount:      atomic.LoadUint64(&m.replayBatchCount),
		ReplayBatchTotalSize:  atomic.LoadUint64(&m.replayBatchTotalSize),
		ReplayBatchDurationNs: atomic.LoadUint64(&m.replayBatchDurationNs),
		ReplayLagCount:        atomic.LoadUint64(&m.replayLagCount),
		ReplayLagTotalNs:      atomic.LoadUint64(&m.replayLagTotalNs),
		ReplayQueueDepth:      atomic.LoadInt64(&m.replayQueueDepth),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

// IncTrackAccepted increments the accepted-action counter.
func (m *InMemoryRecorder) IncTrackAccepted(action string) {
	m.inc(m.trackAccepted, action)
}

// IncTrackRejected increments the rejected-action counter.
func (m *InMemoryRecorder) IncTrackRejected(reason string) {
	m.inc(m.trackRejected, reason)
}

// IncEventRecorded increments the recorded-event counter.
func (m *InMemoryRecorder) IncEventRecorded(status string) {
	m.inc(m.eventsRecorded, status)
}

// IncStatsServed increments the served-report counter.
func (m *InMemoryRecorder) IncStatsServed(source string) {
	m.inc(m.statsServed, source)
}

// IncReplayQueued increments the replay-queue publish counter.
func (m *InMemoryRecorder) IncReplayQueued(status string) {
	m.inc(m.replayQueued, status)
}

// IncReplayProcessed increments the replay-processed counter.
func (m *InMemoryRecorder) IncReplayProcessed(status string) {
	m.inc(m.replayProcessed, status)
}

// ObserveReplayBatchSize records a drained batch size.
func (m *InMemoryRecorder) ObserveReplayBatchSize(size int) {
	atomic.AddUint64(&m.replayBatchCount, 1)
	atomic.AddUint64(&m.replayBatchTotalSize, uint64(size))
}

// ObserveReplayBatchDuration records a drained batch duration.
func (m *InMemoryRecorder) ObserveReplayBatchDuration(duration time.Duration) {
	atomic.AddUint64(&m.replayBatchDurationNs, uint64(duration.Nanoseconds()))
}

// SetReplayQueueDepth records the replay queue depth.
func (m *InMemoryRecorder) SetReplayQueueDepth(depth int64) {
	atomic.StoreInt64(&m.replayQueueDepth, depth)
}

// ObserveReplayLag records time between tracking and replay insertion.
func (m *InMemoryRecorder) ObserveReplayLag(lag time.Duration) {
	atomic.AddUint64(&m.replayLagCount, 1)
	atomic.AddUint64(&m.replayLagTotalNs, uint64(lag.Nanoseconds()))
}
