package repository

import (
	"fmt"
	"time"
)

// timeLayout is fixed width so stored values sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	minStoredTime = "0000-01-01T00:00:00.000000000Z"
	maxStoredTime = "9999-12-31T23:59:59.999999999Z"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w; RFC3339Nano: %w", s, err, err2)
		}
	}
	return t.UTC(), nil
}

// boundArgs maps zero bounds onto the widest stored range.
func boundArgs(from, to time.Time) (string, string) {
	f, t := minStoredTime, maxStoredTime
	if !from.IsZero() {
		f = formatTime(from)
	}
	if !to.IsZero() {
		t = formatTime(to)
	}
	return f, t
}
