package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharetrack/sharetrack/internal/metrics"
	"github.com/sharetrack/sharetrack/internal/model"
)

const (
	// StreamKey is the Redis stream holding events awaiting replay into
	// the store.
	StreamKey = "stream:share_events:replay"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:share_events:replay:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// EventPayload is the compressed event format for the replay stream.
type EventPayload struct {
	ID         string            `json:"id"`
	EventID    string            `json:"eid"`
	FileID     string            `json:"fid"`
	FileName   string            `json:"fn,omitempty"`
	FileURL    string            `json:"fu,omitempty"`
	Action     string            `json:"a"`
	Source     string            `json:"s"`
	UserID     string            `json:"uid,omitempty"`
	UserAgent  string            `json:"ua,omitempty"`
	IPAddress  string            `json:"ip,omitempty"`
	DeviceInfo map[string]string `json:"di,omitempty"`
	TrackedAt  int64             `json:"t"` // Unix milliseconds
}

// PayloadFromEvent converts an event to its stream representation.
func PayloadFromEvent(event model.Event) EventPayload {
	return EventPayload{
		ID:         event.ID,
		EventID:    event.EventID,
		FileID:     event.FileID,
		FileName:   event.FileName,
		FileURL:    event.FileURL,
		Action:     event.Action.String(),
		Source:     event.Source,
		UserID:     event.UserID,
		UserAgent:  event.UserAgent,
		IPAddress:  event.IPAddress,
		DeviceInfo: event.DeviceInfo,
		TrackedAt:  event.Timestamp.UnixMilli(),
	}
}

// EventFromPayload converts a stream payload back to an event.
func EventFromPayload(payload EventPayload) *model.Event {
	return &model.Event{
		ID:         payload.ID,
		EventID:    payload.EventID,
		FileID:     payload.FileID,
		FileName:   payload.FileName,
		FileURL:    payload.FileURL,
		Action:     model.Action(payload.Action),
		Source:     payload.Source,
		UserID:     payload.UserID,
		UserAgent:  payload.UserAgent,
		IPAddress:  payload.IPAddress,
		DeviceInfo: payload.DeviceInfo,
		Timestamp:  time.UnixMilli(payload.TrackedAt).UTC(),
	}
}

// Spill enqueues events to the replay stream when the store write fails.
type Spill struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewSpill creates a new replay queue publisher.
func NewSpill(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Spill {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Spill{
		redis:   client,
		logger:  logger.With("component", "tracker.spill"),
		metrics: recorder,
	}
}

// Publish adds an event to the replay stream synchronously.
func (s *Spill) Publish(ctx context.Context, event model.Event) (string, error) {
	data, err := json.Marshal(PayloadFromEvent(event))
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (s *Spill) PublishAsync(event model.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := s.Publish(ctx, event)
		if err != nil {
			s.logger.Warn("failed to queue event for replay",
				"event_id", event.EventID,
				"error", err,
			)
			s.metrics.IncReplayQueued("dropped")
			return
		}

		s.logger.Debug("event queued for replay",
			"event_id", event.EventID,
			"stream_id", streamID,
		)
		s.metrics.IncReplayQueued("queued")
	}()
}
