package model

import "time"

// HistoryEntry is one bounded-history occurrence kept by the local mirror.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// FileSnapshot is the mirror's cached view of one file's counters.
//
// It is a materialization, not a source of truth: every counter must be
// reconstructible as count(events where file_id=X and action=Y), and the
// reconciler periodically replaces the counters with store-derived values.
type FileSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`

	// File metadata carried through from the upload collaborator when
	// known. Opaque to aggregation.
	Type     string `json:"type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Uploaded string `json:"uploaded,omitempty"`

	ShareCount    int64     `json:"shareCount"`
	DownloadCount int64     `json:"downloadCount"`
	ViewCount     int64     `json:"viewCount"`
	LastAccessed  time.Time `json:"lastAccessed"`

	ShareHistory    []HistoryEntry `json:"shareHistory,omitempty"`
	DownloadHistory []HistoryEntry `json:"downloadHistory,omitempty"`
	ViewHistory     []HistoryEntry `json:"viewHistory,omitempty"`
}

// Count returns the counter for one action kind.
func (s *FileSnapshot) Count(action Action) int64 {
	switch action {
	case ActionShare:
		return s.ShareCount
	case ActionDownload:
		return s.DownloadCount
	case ActionView:
		return s.ViewCount
	default:
		return 0
	}
}
