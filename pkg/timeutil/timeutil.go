// Package timeutil provides timezone utilities for the Europe/Warsaw zone.
// All upstream timestamps are local Warsaw wall-clock values without an offset,
// and calendar windows are expressed as Warsaw calendar dates.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	// Embedded zone database so the service works in scratch containers.
	_ "time/tzdata"
)

// DateLayout is the YYYY-MM-DD layout used by query parameters and the upstream API.
const DateLayout = "2006-01-02"

// Warsaw is the Europe/Warsaw timezone (CET/CEST).
var Warsaw = mustLoadLocation("Europe/Warsaw")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("timeutil: load location %s: %v", name, err))
	}
	return loc
}

// localLayouts are the wall-clock layouts the upstream API has been seen to emit.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	DateLayout,
}

// Now returns the current time in Warsaw.
func Now() time.Time {
	return time.Now().In(Warsaw)
}

// Date creates midnight of the given calendar date in Warsaw.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Warsaw)
}

// DateTime creates a Warsaw wall-clock time.
func DateTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Warsaw)
}

// StartOfDay returns midnight of t's Warsaw calendar day.
func StartOfDay(t time.Time) time.Time {
	w := t.In(Warsaw)
	return time.Date(w.Year(), w.Month(), w.Day(), 0, 0, 0, 0, Warsaw)
}

// AddDays shifts a calendar date by n days, keeping it at midnight.
func AddDays(day time.Time, n int) time.Time {
	return StartOfDay(day).AddDate(0, 0, n)
}

// AtClock returns the given wall-clock time on t's Warsaw calendar day.
func AtClock(day time.Time, hour, minute int) time.Time {
	w := day.In(Warsaw)
	return time.Date(w.Year(), w.Month(), w.Day(), hour, minute, 0, 0, Warsaw)
}

// ParseDate parses a YYYY-MM-DD calendar date as Warsaw midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), Warsaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate formats t's Warsaw calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.In(Warsaw).Format(DateLayout)
}

// ParseLocalDateTime parses an offset-less upstream timestamp as Warsaw wall-clock time.
// RFC 3339 values with an explicit offset are accepted as-is.
func ParseLocalDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(Warsaw), true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, Warsaw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseClock parses an "H:MM" or "HH:MM" time of day.
// Seconds are not accepted.
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// DateInRange reports whether t's Warsaw calendar day lies in [from, to], inclusive.
func DateInRange(t, from, to time.Time) bool {
	day := StartOfDay(t)
	return !day.Before(StartOfDay(from)) && !day.After(StartOfDay(to))
}
