// Package tracker records file interaction events.
package tracker

import "errors"

// Recorder error taxonomy. Validation errors reject the action before any
// write; ErrStoreUnavailable signals a partial failure where the local
// mirror was updated and the event queued for replay, but the store write
// did not land.
var (
	ErrInvalidAction    = errors.New("invalid action")
	ErrMissingFileID    = errors.New("file id is required")
	ErrStoreUnavailable = errors.New("event store unavailable")
)
