package clock

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testing
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// NewTicker creates a new ticker that will send on its channel every d duration
	NewTicker(d time.Duration) *time.Ticker
	// NewTimer creates a timer that fires once after d
	NewTimer(d time.Duration) *time.Timer
}

// Real implements Clock using the real system time
type Real struct{}

// Now returns the current time
func (Real) Now() time.Time {
	return time.Now()
}

// NewTicker creates a new time.Ticker
func (Real) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// NewTimer creates a new time.Timer
func (Real) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

// Mock implements Clock for testing. Tickers and timers it hands out run on
// real time; tests drive logic through Now and explicit calls.
type Mock struct {
	mu          sync.Mutex
	CurrentTime time.Time
}

// NewMock creates a mock clock set to t
func NewMock(t time.Time) *Mock {
	return &Mock{CurrentTime: t}
}

// Now returns the mocked current time
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

// NewTicker creates a ticker (for testing, this may not tick in step with Now)
func (m *Mock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

// NewTimer creates a timer (for testing, this may not fire in step with Now)
func (m *Mock) NewTimer(d time.Duration) *time.Timer {
	return time.NewTimer(d)
}

// Advance moves the mocked time forward by the given duration
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// Set sets the mocked current time to a specific value
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = t
}

// Ensure implementations satisfy the interface
var (
	_ Clock = Real{}
	_ Clock = (*Mock)(nil)
)
