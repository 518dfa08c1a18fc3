package enforce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/prayer"
)

// PrayerSettingsSource reads a user's prayer settings
type PrayerSettingsSource interface {
	GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error)
}

// TimesSource fetches the prayer schedule for a day
type TimesSource interface {
	Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error)
}

// PrayerMonitor watches one user's prayer windows and emits an alert once
// per window.
type PrayerMonitor struct {
	userID   string
	settings PrayerSettingsSource
	source   TimesSource
	clock    clock.Clock
	location *time.Location
	publish  Publisher
	interval time.Duration
	logger   *slog.Logger

	reload chan struct{}

	mu            sync.Mutex
	current       *core.PrayerTimeSettings
	times         *core.PrayerTimes
	lastTriggered prayer.Name

	// set when the last refresh failed and should be retried on the next tick
	retry bool
}

// NewPrayerMonitor creates a monitor for userID
func NewPrayerMonitor(
	userID string,
	settings PrayerSettingsSource,
	source TimesSource,
	clk clock.Clock,
	location *time.Location,
	publish Publisher,
	logger *slog.Logger,
) *PrayerMonitor {
	if clk == nil {
		clk = clock.Real{}
	}
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(Event) {}
	}
	return &PrayerMonitor{
		userID:   userID,
		settings: settings,
		source:   source,
		clock:    clk,
		location: location,
		publish:  publish,
		interval: DefaultPollInterval,
		logger:   logger.With("component", "prayer-monitor", "user_id", userID),
		reload:   make(chan struct{}, 1),
	}
}

// SetInterval overrides the check interval
func (m *PrayerMonitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Run loads settings, fetches today's schedule and checks windows until ctx is done
func (m *PrayerMonitor) Run(ctx context.Context) error {
	m.Refresh(ctx)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	midnight := m.clock.NewTimer(m.untilMidnight())
	defer midnight.Stop()

	m.Check()
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Prayer monitor stopped")
			return nil
		case <-ticker.C:
			if m.needsRetry() {
				m.Refresh(ctx)
				midnight.Reset(m.untilMidnight())
			}
			m.Check()
		case <-midnight.C:
			m.logger.Debug("Refetching prayer times for new day")
			m.Refresh(ctx)
			midnight.Reset(m.untilMidnight())
		case <-m.reload:
			m.Refresh(ctx)
			midnight.Reset(m.untilMidnight())
			m.Check()
		}
	}
}

// Reload requests a settings reload and refetch; it never blocks
func (m *PrayerMonitor) Reload() {
	select {
	case m.reload <- struct{}{}:
	default:
	}
}

// Refresh reloads settings and fetches today's times. Disabled settings or
// missing coordinates leave the monitor without a schedule. Load and fetch
// failures do too, and are retried on the next check tick.
func (m *PrayerMonitor) Refresh(ctx context.Context) {
	settings, err := m.settings.GetPrayerSettings(ctx, m.userID)
	if err != nil {
		m.logger.Warn("Failed to load prayer settings", "error", err)
		m.setSchedule(nil, nil, true)
		return
	}
	if !settings.Enabled || !settings.HasCoordinates() {
		m.setSchedule(settings, nil, false)
		return
	}

	times, err := m.source.Timings(ctx, m.clock.Now(), settings)
	if err != nil {
		m.logger.Warn("Failed to fetch prayer times", "error", err)
		m.setSchedule(settings, nil, true)
		return
	}

	m.logger.Info("Prayer times loaded", "date", times.Date, "timezone", times.Timezone)
	m.setSchedule(settings, times, false)
}

// Check looks for an active prayer window and publishes an alert the first
// time each window is seen. It returns the active prayer, if any.
func (m *PrayerMonitor) Check() (prayer.Active, bool) {
	now := m.clock.Now()

	m.mu.Lock()
	times := m.times
	settings := m.current
	m.mu.Unlock()

	active, ok := prayer.ActiveAt(times, now.In(m.location))

	m.mu.Lock()
	if !ok {
		ended := m.lastTriggered
		m.lastTriggered = ""
		m.mu.Unlock()
		if ended != "" {
			m.publish(Event{Type: EventPrayerEnded, At: now})
		}
		return prayer.Active{}, false
	}
	if active.Name == m.lastTriggered {
		m.mu.Unlock()
		return active, true
	}
	m.lastTriggered = active.Name
	m.mu.Unlock()

	m.logger.Info("Prayer time started", "prayer", active.Name, "time", active.Time)
	m.publish(Event{
		Type:   EventPrayer,
		Prayer: NewPrayerAlert(active, settings),
		At:     now,
	})
	return active, true
}

// Times returns the loaded schedule, if any
func (m *PrayerMonitor) Times() *core.PrayerTimes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.times
}

func (m *PrayerMonitor) setSchedule(settings *core.PrayerTimeSettings, times *core.PrayerTimes, retry bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = settings
	m.times = times
	m.retry = retry
}

func (m *PrayerMonitor) needsRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// untilMidnight measures to the next midnight of the schedule's timezone,
// or of the configured one before a schedule is loaded
func (m *PrayerMonitor) untilMidnight() time.Duration {
	m.mu.Lock()
	loc := m.times.Location(m.location)
	m.mu.Unlock()

	now := m.clock.Now().In(loc)
	y, mo, d := now.Date()
	next := time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
	return next.Sub(now)
}
