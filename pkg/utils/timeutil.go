package utils

import (
	"time"
)

// ISODateLayout is the date-only layout used for expiry dates on the wire.
const ISODateLayout = "2006-01-02"

// FormatISODate formats t as YYYY-MM-DD in t's own location.
func FormatISODate(t time.Time) string {
	return t.Format(ISODateLayout)
}

// ParseISODate parses a YYYY-MM-DD date in the local time zone.
// Full RFC3339 timestamps are accepted and truncated to their date part.
func ParseISODate(s string) (time.Time, error) {
	if len(s) > len(ISODateLayout) && s[len(ISODateLayout)] == 'T' {
		s = s[:len(ISODateLayout)]
	}
	return time.ParseInLocation(ISODateLayout, s, time.Local)
}

// DateOnly returns the date part of an ISO date or timestamp string.
// e.g., "2025-03-01T00:00:00.000Z" → "2025-03-01"
func DateOnly(s string) string {
	if len(s) >= len(ISODateLayout) {
		if _, err := time.Parse(ISODateLayout, s[:len(ISODateLayout)]); err == nil {
			return s[:len(ISODateLayout)]
		}
	}
	return s
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TodayISO returns today's local date as YYYY-MM-DD.
func TodayISO(now time.Time) string {
	return FormatISODate(now.In(time.Local))
}

// AddDaysISO returns the local date `days` after now as YYYY-MM-DD.
func AddDaysISO(now time.Time, days int) string {
	return FormatISODate(StartOfDay(now.In(time.Local)).AddDate(0, 0, days))
}

// IsBeforeDay reports whether the ISO date s falls before now's local day.
// Unparseable dates are reported as false; callers validate format separately.
func IsBeforeDay(s string, now time.Time) bool {
	d, err := ParseISODate(s)
	if err != nil {
		return false
	}
	return d.Before(StartOfDay(now.In(time.Local)))
}

// validDate reports whether y-m-d names a real calendar day.
func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
	return t.Year() == y && int(t.Month()) == m && t.Day() == d
}
