// Package aggregator computes derived share statistics over event windows.
// All computation is pure: identical inputs always produce identical reports.
package aggregator

import "time"

// Period is a requested aggregation window token.
type Period string

// Recognized periods.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// DefaultPeriod is used when the requested token is missing or unknown.
// A malformed period never fails a query; it degrades to the default.
const DefaultPeriod = PeriodWeek

// ParsePeriod resolves a raw query token to a Period, falling back to
// DefaultPeriod for anything unrecognized.
func ParsePeriod(raw string) Period {
	switch Period(raw) {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return Period(raw)
	default:
		return DefaultPeriod
	}
}

// String returns the period token.
func (p Period) String() string {
	return string(p)
}

// WindowStart returns the inclusive start of the [start, now) window.
// Day and week subtract fixed durations; month and year subtract one
// calendar unit, matching the upstream tracking API.
func (p Period) WindowStart(now time.Time) time.Time {
	switch p {
	case PeriodDay:
		return now.AddDate(0, 0, -1)
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -7)
	}
}
