package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses "HH:MM" into minutes since midnight.
// Anything after the first five characters (e.g. " (EET)") is ignored.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	hour, err := strconv.Atoi(s[:2])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(s[3:5])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// MinutesOfDay returns minutes since local midnight of t
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// IsInWindow checks if current (minutes since midnight) falls in [start, end].
// Both bounds are inclusive. When end <= start the window wraps past midnight.
func IsInWindow(start, end, current int) bool {
	if end > start {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// Contains reports whether the schedule is active at t (already in local time)
func (s *Schedule) Contains(t time.Time) bool {
	if !s.appliesOn(t.Weekday()) {
		return false
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return false
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return false
	}
	return IsInWindow(start, end, MinutesOfDay(t))
}

func (s *Schedule) appliesOn(day time.Weekday) bool {
	for _, d := range s.DaysOfWeek {
		if d == int(day) {
			return true
		}
	}
	return false
}

// MatchSchedule returns the first schedule active at t, or nil
func MatchSchedule(schedules []*Schedule, t time.Time) *Schedule {
	for _, s := range schedules {
		if s != nil && s.Contains(t) {
			return s
		}
	}
	return nil
}
