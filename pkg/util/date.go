package util

import (
	"strconv"
	"time"
)

// DayLayout is the only date form accepted on the wire and from callers.
const DayLayout = "2006-01-02"

// ParseDay parses a strict YYYY-MM-DD date. Anything that is not exactly
// ten characters is rejected before the layout is even tried.
func ParseDay(s string) (time.Time, bool) {
	if len(s) != len(DayLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDay renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DayLayout)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// QuarterIndex returns 1..4 for the calendar quarter containing t.
func QuarterIndex(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// YearsElapsed is the difference of calendar years, not full 365-day periods.
func YearsElapsed(from, to time.Time) int {
	return to.Year() - from.Year()
}

// ParseTime tries RFC3339, a plain day, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, ok := ParseDay(s); ok {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}
