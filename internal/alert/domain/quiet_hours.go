package domain

import (
	"fmt"
	"time"
)

// WithinQuietHours reports whether now falls inside the [start, end)
// window. A window that crosses midnight wraps; identical start and end
// disables quiet hours entirely.
func WithinQuietHours(now time.Time, start, end string) (bool, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false, err
	}
	if startMin == endMin {
		return false, nil
	}
	current := now.UTC().Hour()*60 + now.UTC().Minute()
	if startMin < endMin {
		return startMin <= current && current < endMin, nil
	}
	return current >= startMin || current < endMin, nil
}

func parseClock(value string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	return hour*60 + minute, nil
}
