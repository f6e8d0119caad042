package jobs

import (
	"fmt"
	"time"
)

// BusinessHours is the weekday/time-range predicate that controls polling
// frequency. The range is inclusive on both ends.
type BusinessHours struct {
	timezone *time.Location
	startMin int // minutes since midnight
	endMin   int
}

// NewBusinessHours creates the predicate from a time zone name and
// "HH:MM" start/end bounds
func NewBusinessHours(timezone, start, end string) (*BusinessHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	startMin, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid business hours start %q: %w", start, err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid business hours end %q: %w", end, err)
	}

	return &BusinessHours{
		timezone: loc,
		startMin: startMin,
		endMin:   endMin,
	}, nil
}

// Contains reports whether t falls on a weekday within the configured range,
// evaluated in the configured time zone
func (b *BusinessHours) Contains(t time.Time) bool {
	local := t.In(b.timezone)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= b.startMin && minute <= b.endMin
}

// parseClock parses "HH:MM" into minutes since midnight
func parseClock(s string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, err
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("out of range")
	}
	return hour*60 + minute, nil
}
