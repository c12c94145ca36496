// Package partition owns partition lifecycle: routing entries to a
// time-bucketed key, capping the active window, and driving retention and
// archival. The Index Engine itself is granularity-agnostic; this package
// is the only place that knows what a key means in wall-clock terms.
package partition

import (
	"fmt"
	"time"
)

// Granularity selects how a timestamp maps to a partition key.
type Granularity int

const (
	Daily Granularity = iota
	Weekly
	Monthly
)

// KeyFor derives the partition key for ts under granularity. Keys sort
// lexicographically in time order for all three granularities.
func KeyFor(ts time.Time, g Granularity) string {
	ts = ts.UTC()
	switch g {
	case Weekly:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return ts.Format("2006-01")
	default:
		return ts.Format("2006-01-02")
	}
}

// KeyEnd returns the exclusive end-of-bucket instant for key under g, used
// by retention ("key-end-time < now - max_age_days") and rotation-cap
// comparisons. It returns a zero time if key cannot be parsed under g.
func KeyEnd(key string, g Granularity) time.Time {
	switch g {
	case Weekly:
		var year, week int
		if _, err := fmt.Sscanf(key, "%04d-W%02d", &year, &week); err != nil {
			return time.Time{}
		}
		start := isoWeekStart(year, week)
		return start.AddDate(0, 0, 7)
	case Monthly:
		start, err := time.Parse("2006-01", key)
		if err != nil {
			return time.Time{}
		}
		return start.AddDate(0, 1, 0)
	default:
		start, err := time.Parse("2006-01-02", key)
		if err != nil {
			return time.Time{}
		}
		return start.AddDate(0, 0, 1)
	}
}

// isoWeekStart returns the Monday 00:00 UTC that begins ISO week (year, week).
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, 1, 4, 0, 0, 0, 0, time.UTC)
	isoWeekday := int(jan4.Weekday())
	if isoWeekday == 0 {
		isoWeekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, 1-isoWeekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}
