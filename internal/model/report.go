package model

import "time"

// DailyShare is one calendar-day bucket of share activity.
type DailyShare struct {
	Date        string `json:"date"` // ISO date in the configured zone
	Shares      int64  `json:"shares"`
	UniqueFiles int64  `json:"uniqueFiles"`
}

// TopFile is one entry of the share ranking.
type TopFile struct {
	FileID     string    `json:"fileId"`
	FileName   string    `json:"fileName,omitempty"`
	Shares     int64     `json:"shares"`
	LastShared time.Time `json:"lastShared"`
}

// ShareSource is one attribution bucket of the source breakdown.
type ShareSource struct {
	Source     string `json:"source"`
	Count      int64  `json:"count"`
	Percentage int    `json:"percentage"`
}

// HourlyBucket is one hour-of-day bucket, aggregated across all days
// in the window.
type HourlyBucket struct {
	Hour   int   `json:"hour"` // 0-23
	Shares int64 `json:"shares"`
	Avg    int64 `json:"avg"` // flat average: total shares / 24
}

// AggregateReport is the dashboard statistics payload for one window.
// It is computed per query and never stored.
type AggregateReport struct {
	TotalShares    int64          `json:"totalShares"`
	UniqueFiles    int64          `json:"uniqueFiles"`
	SharesByDay    []DailyShare   `json:"sharesByDay"`
	TopFiles       []TopFile      `json:"topFiles"`
	ShareSources   []ShareSource  `json:"shareSources"`
	HourlyActivity []HourlyBucket `json:"hourlyActivity"`
	Period         string         `json:"period"`
	WindowStart    time.Time      `json:"windowStart"`
	WindowEnd      time.Time      `json:"windowEnd"`
	Degraded       bool           `json:"degraded,omitempty"` // served from the local mirror
}

// TimelineEntry is one raw occurrence in a per-file action timeline.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// ActionStat groups a file's events of one action kind.
type ActionStat struct {
	Action   Action          `json:"action"`
	Count    int64           `json:"count"`
	Timeline []TimelineEntry `json:"timeline,omitempty"`
}

// FileDailyShare is one calendar-day share count for a single file.
type FileDailyShare struct {
	Date   string `json:"date"`
	Shares int64  `json:"shares"`
}

// FileReport is the per-file statistics payload.
type FileReport struct {
	FileID         string           `json:"fileId"`
	Stats          []ActionStat     `json:"stats"`
	DailyShares    []FileDailyShare `json:"dailyShares"`
	TotalShares    int64            `json:"totalShares"`
	TotalDownloads int64            `json:"totalDownloads"`
	TotalViews     int64            `json:"totalViews"`
	Period         string           `json:"period"`
}
