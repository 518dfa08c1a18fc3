package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixWatch    = "watch_"
	PrefixViewing  = "view_"
	PrefixSchedule = "sched_"
)

// NewWatch generates a tracked playback ID with watch_ prefix
func NewWatch() string {
	return PrefixWatch + uuid.New().String()
}

// NewViewing generates a browsing-session ID with view_ prefix
func NewViewing() string {
	return PrefixViewing + uuid.New().String()
}

// NewSchedule generates a schedule ID with sched_ prefix
func NewSchedule() string {
	return PrefixSchedule + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
