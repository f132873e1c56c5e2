// internal/services/period.go
package services

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	monthPeriod = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	weekPeriod  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
)

// Period is a half-open UTC interval [Start, End) named by Key.
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// ParsePeriod accepts a calendar month (2025-03) or an ISO week (2025-W09).
func ParsePeriod(key string) (Period, error) {
	if m := monthPeriod.FindStringSubmatch(key); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return Period{}, invalid("period", "month %02d out of range", month)
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return Period{Key: key, Start: start, End: start.AddDate(0, 1, 0)}, nil
	}

	if m := weekPeriod.FindStringSubmatch(key); m != nil {
		year, _ := strconv.Atoi(m[1])
		week, _ := strconv.Atoi(m[2])
		start := isoWeekStart(year, week)
		if y, w := start.ISOWeek(); week < 1 || y != year || w != week {
			return Period{}, invalid("period", "week %d does not exist in %d", week, year)
		}
		return Period{Key: key, Start: start, End: start.AddDate(0, 0, 7)}, nil
	}

	return Period{}, invalid("period", "%q is neither YYYY-MM nor YYYY-Www", key)
}

// isoWeekStart returns the Monday of the given ISO week.
func isoWeekStart(year, week int) time.Time {
	// January 4th is always in week 1
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (week-1)*7)
}

func (p Period) String() string {
	return fmt.Sprintf("%s [%s, %s)", p.Key, p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
}
