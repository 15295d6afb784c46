// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "time"

// TrackRequest represents the request body for recording a share event.
// The action itself comes from the URL path, not the body.
type TrackRequest struct {
	FileID     string            `json:"fileId"`
	FileName   string            `json:"fileName,omitempty"`
	FileURL    string            `json:"fileUrl,omitempty"`
	Source     string            `json:"source,omitempty"`
	UserID     string            `json:"userId,omitempty"`
	DeviceInfo map[string]string `json:"deviceInfo,omitempty"`
}

// TrackResponse represents the result of recording a share event.
// Deferred is set when the event was accepted but the store write is
// still pending replay.
type TrackResponse struct {
	Success   bool      `json:"success"`
	EventID   string    `json:"eventId"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Deferred  bool      `json:"deferred,omitempty"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
