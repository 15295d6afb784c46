// Package model defines domain entities for the application.
package model

import "time"

// Action is the kind of file interaction being tracked.
type Action string

// Recognized actions. The wire names match what the dashboard client sends.
const (
	ActionShare    Action = "copy_link"
	ActionDownload Action = "download"
	ActionView     Action = "view"
)

// DefaultSource is the attribution recorded when the caller omits one.
const DefaultSource = "direct_copy"

// Valid reports whether the action is one of the recognized kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionShare, ActionDownload, ActionView:
		return true
	default:
		return false
	}
}

// String returns the wire name of the action.
func (a Action) String() string {
	return string(a)
}

// Event is a single immutable file interaction record.
// Events are append-only: rows are never updated or deleted, and every
// statistic the service reports is derived from them.
type Event struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key

	// File reference. Name and URL are denormalized snapshots taken at
	// event time and are not kept in sync with later renames.
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	FileURL  string `json:"file_url,omitempty"`

	Action Action `json:"action"`
	Source string `json:"source"` // Attribution channel, e.g. direct_copy, email

	// Acting principal, when authenticated.
	UserID string `json:"user_id,omitempty"`

	// Request context, opaque to aggregation.
	UserAgent  string            `json:"user_agent,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`

	Timestamp time.Time `json:"timestamp"`  // Assigned by the recorder, server clock
	CreatedAt time.Time `json:"created_at"` // DB insertion time
}
