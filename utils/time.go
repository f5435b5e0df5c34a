// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// DayLayout is the calendar-day key used by daily counters
const DayLayout = "2006-01-02"

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// DayKey returns the UTC calendar day of t
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// WholeDaysBetween returns floor((to - from) / 24h); negative spans return 0
func WholeDaysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
