package tracker

import (
	"errors"

	"github.com/sharetrack/sharetrack/internal/model"
)

const maxMetaLength = 500

// truncate bounds free-text request metadata before it is persisted.
func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}

// ValidatePayload checks a replay payload before it is turned back into
// an event. Malformed payloads go to the dead-letter stream.
func ValidatePayload(payload EventPayload) error {
	if payload.ID == "" {
		return errors.New("id is required")
	}
	if payload.EventID == "" {
		return errors.New("event_id is required")
	}
	if payload.FileID == "" {
		return ErrMissingFileID
	}
	if !model.Action(payload.Action).Valid() {
		return ErrInvalidAction
	}
	if payload.TrackedAt <= 0 {
		return errors.New("tracked_at must be set")
	}
	return nil
}
