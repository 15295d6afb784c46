package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sharetrack/sharetrack/internal/handler/dto"
	"github.com/sharetrack/sharetrack/internal/model"
	"github.com/sharetrack/sharetrack/internal/tracker"
)

// DefaultMaxBodySize bounds track request bodies.
const DefaultMaxBodySize = 64 * 1024 // 64KB

// EventRecorder records validated share events.
type EventRecorder interface {
	Record(ctx context.Context, in tracker.Input) (*model.Event, error)
}

// TrackHandler handles event recording requests.
type TrackHandler struct {
	recorder    EventRecorder
	logger      *slog.Logger
	maxBodySize int64
}

// NewTrackHandler creates a new TrackHandler.
func NewTrackHandler(recorder EventRecorder, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{
		recorder:    recorder,
		logger:      logger.With("component", "handler.track"),
		maxBodySize: DefaultMaxBodySize,
	}
}

// SetMaxBodySize overrides the default request body limit.
func (h *TrackHandler) SetMaxBodySize(size int64) {
	if size > 0 {
		h.maxBodySize = size
	}
}

// Track handles POST /track/{action}.
//
// Returns 200 when the event was fully recorded, 202 when the event was
// accepted locally but the store write is deferred to the replay queue,
// and 400 for invalid input. Tracking failures never surface as 5xx to
// the client; the UI treats tracking as best-effort.
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	var req dto.TrackRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be valid JSON")
		return
	}

	event, err := h.recorder.Record(r.Context(), tracker.Input{
		Action:     action,
		FileID:     req.FileID,
		FileName:   req.FileName,
		FileURL:    req.FileURL,
		Source:     req.Source,
		UserID:     req.UserID,
		UserAgent:  r.UserAgent(),
		IPAddress:  clientIP(r),
		DeviceInfo: req.DeviceInfo,
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.TrackResponse{
			Success:   true,
			EventID:   event.EventID,
			Action:    event.Action.String(),
			Timestamp: event.Timestamp,
		})

	case errors.Is(err, tracker.ErrInvalidAction):
		h.writeError(w, http.StatusBadRequest, "INVALID_ACTION", "Action must be one of: copy_link, download, view")

	case errors.Is(err, tracker.ErrMissingFileID):
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "fileId is required")

	case errors.Is(err, tracker.ErrStoreUnavailable):
		// Partial success: the mirror saw the event and it is queued
		// for replay, so the client should not retry.
		writeJSON(w, http.StatusAccepted, dto.TrackResponse{
			Success:   true,
			EventID:   event.EventID,
			Action:    event.Action.String(),
			Timestamp: event.Timestamp,
			Deferred:  true,
		})

	default:
		h.logger.Error("failed to record event", "action", action, "file_id", req.FileID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event")
	}
}

// writeError writes a JSON error response.
func (h *TrackHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// clientIP extracts the client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	return r.RemoteAddr
}
