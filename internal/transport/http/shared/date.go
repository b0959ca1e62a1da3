package shared

import (
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// ParseDay reads a leave day. Leave is booked in whole days, so timestamps are cut to
// their UTC calendar date.
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if day, err := time.Parse(dayLayout, value); err == nil {
		return day, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", value, err)
	}
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
