package core

import (
	"sync"
	"time"
)

// ShortsCounter counts consecutive short views within one browsing session
type ShortsCounter struct {
	count    int
	lastSeen time.Time
}

// RecordView updates the counter for a view and returns the new count.
// A standard video resets the run.
func (c *ShortsCounter) RecordView(variant VideoVariant, now time.Time) int {
	c.lastSeen = now
	if variant == VariantShorts {
		c.count++
	} else {
		c.count = 0
	}
	return c.count
}

// Count returns the current run length
func (c *ShortsCounter) Count() int {
	return c.count
}

// ShouldRedirect reports whether the run exceeds the configured ceiling.
// A ceiling of zero disables the check.
func ShouldRedirect(count, ceiling int) bool {
	return ceiling > 0 && count > ceiling
}

// ShortsCeiling returns the effective ceiling for limits; 0 when not enforced
func ShortsCeiling(limits *ScreenTimeLimit) int {
	if limits == nil || !limits.Enabled {
		return 0
	}
	return limits.ConsecutiveShortsLimit
}

// ViewingSessions holds shorts counters keyed by browsing-session ID
type ViewingSessions struct {
	mu       sync.Mutex
	counters map[string]*ShortsCounter
	ttl      time.Duration
}

// NewViewingSessions creates a store whose counters expire after ttl of inactivity
func NewViewingSessions(ttl time.Duration) *ViewingSessions {
	return &ViewingSessions{
		counters: make(map[string]*ShortsCounter),
		ttl:      ttl,
	}
}

// RecordView records a view for the browsing session and returns the run length
func (v *ViewingSessions) RecordView(sessionID string, variant VideoVariant, now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	counter, ok := v.counters[sessionID]
	if !ok || v.expired(counter, now) {
		counter = &ShortsCounter{}
		v.counters[sessionID] = counter
	}
	return counter.RecordView(variant, now)
}

// Count returns the current run length for the browsing session
func (v *ViewingSessions) Count(sessionID string, now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	counter, ok := v.counters[sessionID]
	if !ok || v.expired(counter, now) {
		return 0
	}
	return counter.Count()
}

// Sweep drops expired counters and returns how many were removed
func (v *ViewingSessions) Sweep(now time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for id, counter := range v.counters {
		if v.expired(counter, now) {
			delete(v.counters, id)
			removed++
		}
	}
	return removed
}

func (v *ViewingSessions) expired(c *ShortsCounter, now time.Time) bool {
	return v.ttl > 0 && now.Sub(c.lastSeen) > v.ttl
}
