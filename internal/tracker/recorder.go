package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/sharetrack/sharetrack/internal/metrics"
	"github.com/sharetrack/sharetrack/internal/model"
)

// DefaultWriteTimeout bounds the event store write. A slower write is
// treated the same as an outage: the action is never blocked on it.
const DefaultWriteTimeout = 2 * time.Second

// EventStore persists events.
type EventStore interface {
	Insert(ctx context.Context, event *model.Event) error
}

// MirrorApplier receives every recorded event, store outcome regardless.
type MirrorApplier interface {
	Apply(event model.Event)
}

// Spiller queues events for asynchronous replay into the store.
type Spiller interface {
	PublishAsync(event model.Event)
}

// Input carries one tracking request into the recorder.
type Input struct {
	Action     string
	FileID     string
	FileName   string
	FileURL    string
	Source     string
	UserID     string
	UserAgent  string
	IPAddress  string
	DeviceInfo map[string]string
}

// Validate rejects malformed input before any write happens.
func (in Input) Validate() error {
	if !model.Action(in.Action).Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, in.Action)
	}
	if in.FileID == "" {
		return ErrMissingFileID
	}
	return nil
}

// Recorder validates tracking requests and appends exactly one event per
// accepted action. The local mirror is updated on every accepted action;
// a failed or slow store write degrades to a partial success instead of
// failing the user-facing request.
type Recorder struct {
	store        EventStore
	mirror       MirrorApplier
	spill        Spiller
	logger       *slog.Logger
	metrics      metrics.Recorder
	writeTimeout time.Duration
	now          func() time.Time
}

// NewRecorder creates a Recorder. spill may be nil to disable replay
// queueing.
func NewRecorder(store EventStore, mirror MirrorApplier, spill Spiller, logger *slog.Logger, recorder metrics.Recorder) *Recorder {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Recorder{
		store:        store,
		mirror:       mirror,
		spill:        spill,
		logger:       logger.With("component", "tracker.recorder"),
		metrics:      recorder,
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
}

// SetWriteTimeout overrides the default store write deadline.
func (r *Recorder) SetWriteTimeout(timeout time.Duration) {
	if timeout > 0 {
		r.writeTimeout = timeout
	}
}

// SetClock overrides the recorder clock. Tests only.
func (r *Recorder) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Record appends one event for the given input.
//
// The timestamp is assigned here from the server clock; client-supplied
// times are never trusted. On store failure the event still reaches the
// mirror and the replay queue, and ErrStoreUnavailable is returned so the
// caller knows the remote write is pending.
func (r *Recorder) Record(ctx context.Context, in Input) (*model.Event, error) {
	if err := in.Validate(); err != nil {
		r.metrics.IncTrackRejected(rejectReason(err))
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = model.DefaultSource
	}

	event := &model.Event{
		ID:         ulid.Make().String(),
		EventID:    uuid.New().String(),
		FileID:     in.FileID,
		FileName:   in.FileName,
		FileURL:    in.FileURL,
		Action:     model.Action(in.Action),
		Source:     source,
		UserID:     in.UserID,
		UserAgent:  truncate(in.UserAgent, maxMetaLength),
		IPAddress:  in.IPAddress,
		DeviceInfo: in.DeviceInfo,
		Timestamp:  r.now().UTC(),
	}

	r.metrics.IncTrackAccepted(in.Action)

	// Local tracking is authoritative for UI responsiveness: the mirror
	// sees the event whether or not the store write lands.
	if r.mirror != nil {
		r.mirror.Apply(*event)
	}

	writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	if err := r.store.Insert(writeCtx, event); err != nil {
		r.logger.Warn("event store write failed, event queued for replay",
			"event_id", event.EventID,
			"file_id", event.FileID,
			"action", event.Action.String(),
			"error", err,
		)
		if r.spill != nil {
			r.spill.PublishAsync(*event)
		}
		r.metrics.IncEventRecorded("deferred")
		return event, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.metrics.IncEventRecorded("stored")
	r.logger.Debug("event recorded",
		"event_id", event.EventID,
		"file_id", event.FileID,
		"action", event.Action.String(),
	)

	return event, nil
}

func rejectReason(err error) string {
	switch {
	case isErr(err, ErrInvalidAction):
		return "invalid_action"
	case isErr(err, ErrMissingFileID):
		return "missing_file_id"
	default:
		return "invalid"
	}
}
