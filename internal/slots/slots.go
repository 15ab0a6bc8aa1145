// Package slots defines the fixed daily appointment grid. Office hours
// run in two blocks, morning and afternoon, with a lunch break between
// 11:30 and 13:00.
package slots

import "time"

var timeSlots = []string{
	"08:00", "08:30", "09:00", "09:30",
	"10:00", "10:30", "11:00", "11:30",
	"13:00", "13:30", "14:00", "14:30",
	"15:00", "15:30",
}

// All returns the full daily grid in chronological order. Callers must
// not modify the returned slice.
func All() []string {
	return timeSlots
}

func Valid(slot string) bool {
	for _, s := range timeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// ValidDate reports whether value is a well-formed calendar date that
// is not in the past relative to today in loc.
func ValidDate(value string, now time.Time, loc *time.Location) bool {
	d, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return !d.Before(today)
}

// Available filters the daily grid against the already-booked slot
// times for one service and date.
func Available(booked []string) []string {
	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		taken[b] = true
	}
	out := make([]string, 0, len(timeSlots))
	for _, s := range timeSlots {
		if !taken[s] {
			out = append(out, s)
		}
	}
	return out
}
