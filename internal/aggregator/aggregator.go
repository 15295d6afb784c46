package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/sharetrack/sharetrack/internal/model"
)

const (
	// TopFilesLimit caps the share ranking in store-backed reports.
	TopFilesLimit = 10

	// HoursPerDay is the size of the hourly histogram.
	HoursPerDay = 24

	dateLayout = "2006-01-02"
)

// Aggregate computes a dashboard report for one window.
//
// Only share (copy_link) events contribute to the report; events outside
// [windowStart, now) are ignored. Grouping follows the order events arrive
// in, so a fixed event ordering yields a byte-identical report. Day and
// hour bucketing happens in loc.
func Aggregate(period Period, now time.Time, loc *time.Location, events []model.Event) model.AggregateReport {
	start := period.WindowStart(now)

	report := model.AggregateReport{
		SharesByDay:  []model.DailyShare{},
		TopFiles:     []model.TopFile{},
		ShareSources: []model.ShareSource{},
		Period:       period.String(),
		WindowStart:  start,
		WindowEnd:    now,
	}

	type dayAcc struct {
		shares int64
		files  map[string]bool
	}
	type fileAcc struct {
		name       string
		shares     int64
		lastShared time.Time
	}

	days := make(map[string]*dayAcc)
	dayOrder := make([]string, 0)
	files := make(map[string]*fileAcc)
	fileOrder := make([]string, 0)
	sources := make(map[string]int64)
	sourceOrder := make([]string, 0)
	uniqueFiles := make(map[string]bool)
	var hourly [HoursPerDay]int64

	for _, event := range events {
		if event.Action != model.ActionShare {
			continue
		}
		if !inWindow(event.Timestamp, start, now) {
			continue
		}

		local := event.Timestamp.In(loc)
		report.TotalShares++
		uniqueFiles[event.FileID] = true
		hourly[local.Hour()]++

		day := local.Format(dateLayout)
		acc, ok := days[day]
		if !ok {
			acc = &dayAcc{files: make(map[string]bool)}
			days[day] = acc
			dayOrder = append(dayOrder, day)
		}
		acc.shares++
		acc.files[event.FileID] = true

		fa, ok := files[event.FileID]
		if !ok {
			fa = &fileAcc{name: event.FileName}
			files[event.FileID] = fa
			fileOrder = append(fileOrder, event.FileID)
		}
		fa.shares++
		if event.Timestamp.After(fa.lastShared) {
			fa.lastShared = event.Timestamp
		}

		source := event.Source
		if source == "" {
			source = model.DefaultSource
		}
		if _, ok := sources[source]; !ok {
			sourceOrder = append(sourceOrder, source)
		}
		sources[source]++
	}

	report.UniqueFiles = int64(len(uniqueFiles))

	sort.Strings(dayOrder)
	for _, day := range dayOrder {
		report.SharesByDay = append(report.SharesByDay, model.DailyShare{
			Date:        day,
			Shares:      days[day].shares,
			UniqueFiles: int64(len(days[day].files)),
		})
	}

	ranked := make([]model.TopFile, 0, len(fileOrder))
	for _, id := range fileOrder {
		ranked = append(ranked, model.TopFile{
			FileID:     id,
			FileName:   files[id].name,
			Shares:     files[id].shares,
			LastShared: files[id].lastShared,
		})
	}
	// Stable sort keeps discovery order as the final tie-break, so the
	// ranking is deterministic for a fixed event ordering.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Shares != ranked[j].Shares {
			return ranked[i].Shares > ranked[j].Shares
		}
		return ranked[i].LastShared.After(ranked[j].LastShared)
	})
	if len(ranked) > TopFilesLimit {
		ranked = ranked[:TopFilesLimit]
	}
	report.TopFiles = ranked

	report.ShareSources = sourceBreakdown(sourceOrder, sources, report.TotalShares)
	report.HourlyActivity = hourlyActivity(hourly, report.TotalShares)

	return report
}

// AggregateFile computes a per-file report over one window.
// Unlike Aggregate, all three action kinds contribute.
func AggregateFile(fileID string, period Period, now time.Time, loc *time.Location, events []model.Event) model.FileReport {
	start := period.WindowStart(now)

	report := model.FileReport{
		FileID:      fileID,
		Stats:       []model.ActionStat{},
		DailyShares: []model.FileDailyShare{},
		Period:      period.String(),
	}

	timelines := map[model.Action][]model.TimelineEntry{}
	counts := map[model.Action]int64{}
	days := make(map[string]int64)
	dayOrder := make([]string, 0)

	for _, event := range events {
		if event.FileID != fileID {
			continue
		}
		if !inWindow(event.Timestamp, start, now) {
			continue
		}

		counts[event.Action]++
		timelines[event.Action] = append(timelines[event.Action], model.TimelineEntry{
			Timestamp: event.Timestamp,
			Source:    event.Source,
		})

		if event.Action == model.ActionShare {
			day := event.Timestamp.In(loc).Format(dateLayout)
			if _, ok := days[day]; !ok {
				dayOrder = append(dayOrder, day)
			}
			days[day]++
		}
	}

	// Fixed action order keeps the stats sequence deterministic.
	for _, action := range []model.Action{model.ActionShare, model.ActionDownload, model.ActionView} {
		if counts[action] == 0 {
			continue
		}
		report.Stats = append(report.Stats, model.ActionStat{
			Action:   action,
			Count:    counts[action],
			Timeline: timelines[action],
		})
	}

	sort.Strings(dayOrder)
	for _, day := range dayOrder {
		report.DailyShares = append(report.DailyShares, model.FileDailyShare{
			Date:   day,
			Shares: days[day],
		})
	}

	report.TotalShares = counts[model.ActionShare]
	report.TotalDownloads = counts[model.ActionDownload]
	report.TotalViews = counts[model.ActionView]

	return report
}

// sourceBreakdown converts source counts to percentage buckets.
// Percentages are rounded per bucket, so the sum can drift from 100 by up
// to (buckets - 1). Zero total yields an empty breakdown, never a division
// error.
func sourceBreakdown(order []string, counts map[string]int64, total int64) []model.ShareSource {
	result := make([]model.ShareSource, 0, len(order))
	if total == 0 {
		return result
	}

	for _, source := range order {
		count := counts[source]
		result = append(result, model.ShareSource{
			Source:     source,
			Count:      count,
			Percentage: int(math.Round(float64(count) / float64(total) * 100)),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})

	return result
}

// hourlyActivity builds the fixed 24-bucket histogram. The avg column is
// a flat total/24 figure, not a per-bucket mean.
func hourlyActivity(hourly [HoursPerDay]int64, total int64) []model.HourlyBucket {
	avg := int64(math.Round(float64(total) / HoursPerDay))
	buckets := make([]model.HourlyBucket, HoursPerDay)
	for hour := range buckets {
		buckets[hour] = model.HourlyBucket{
			Hour:   hour,
			Shares: hourly[hour],
			Avg:    avg,
		}
	}
	return buckets
}

func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}
