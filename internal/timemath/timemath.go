// Package timemath provides local HH:MM clock arithmetic for session
// planning. All functions are pure; there is no time zone handling beyond
// local wall-clock minutes.
package timemath

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of minutes on a local wall clock.
const MinutesPerDay = 24 * 60

// MinutesOfDay converts a local "HH:MM" string to minutes since midnight.
// Invalid or unparseable input degrades to 0 (midnight) rather than failing.
func MinutesOfDay(hhmm string) int {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0
	}
	return h*60 + m
}

// FormatMinutes renders minutes since midnight as "HH:MM".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	minutes %= MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatClock renders a timestamp as the patient-facing "3:04 PM" form.
func FormatClock(t time.Time) string {
	return strings.TrimPrefix(t.Format("3:04 PM"), "0")
}

// DateKey returns the calendar-day key used to identify a session.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
