// Package tracker accumulates watch time for active playback and credits
// whole minutes to the daily screen-time usage.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"choicetube/internal/clock"
	"choicetube/internal/core"
)

const (
	// InitialFlushDelay is how long after start the first record is written
	InitialFlushDelay = 3 * time.Second
	// DefaultFlushInterval is the cadence of periodic flushes while active
	DefaultFlushInterval = 30 * time.Second
)

// Store persists what the tracker produces
type Store interface {
	UpsertWatchSession(ctx context.Context, session *core.WatchSession) error
	AddUsage(ctx context.Context, userID, day string, minutes int) error
}

// Params identifies one tracked playback
type Params struct {
	ID       string
	UserID   string
	VideoID  string
	Variant  core.VideoVariant
	Interval time.Duration
	Location *time.Location
}

// Snapshot is a read-only view of tracker state
type Snapshot struct {
	ID              string            `json:"id"`
	VideoID         string            `json:"videoId"`
	Type            core.VideoVariant `json:"type"`
	StartedAt       time.Time         `json:"startedAt"`
	WatchedSeconds  int               `json:"watchedSeconds"`
	CreditedMinutes int               `json:"creditedMinutes"`
	Playing         bool              `json:"playing"`
	Visible         bool              `json:"visible"`
	LastFlush       time.Time         `json:"lastFlush"`
	Stopped         bool              `json:"stopped"`
}

// Tracker follows one playback of one video
type Tracker struct {
	mu     sync.Mutex
	params Params
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	day          string
	startedAt    time.Time
	sessionStart time.Time
	accumulated  int // seconds
	credited     int // seconds already turned into usage minutes
	lastFlush    time.Time
	nextFlush    time.Time
	lastSeen     time.Time
	playing      bool
	visible      bool
	completed    bool
	stopped      bool
}

// New creates a tracker and starts counting immediately
func New(params Params, store Store, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if params.Interval <= 0 {
		params.Interval = DefaultFlushInterval
	}
	if params.Location == nil {
		params.Location = time.Local
	}

	now := clk.Now()
	return &Tracker{
		params: params,
		store:  store,
		clock:  clk,
		logger: logger.With(
			"component", "tracker",
			"watch_id", params.ID,
			"video_id", params.VideoID,
		),
		day:          core.DayKey(now, params.Location),
		startedAt:    now,
		sessionStart: now,
		lastFlush:    now,
		nextFlush:    now.Add(InitialFlushDelay),
		lastSeen:     now,
		playing:      true,
		visible:      true,
	}
}

// ID returns the tracker ID
func (t *Tracker) ID() string { return t.params.ID }

// UserID returns the owning user
func (t *Tracker) UserID() string { return t.params.UserID }

// Due reports whether a periodic flush should run at now
func (t *Tracker) Due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && t.activeLocked() && !now.Before(t.nextFlush)
}

// IdleSince reports how long the client has been silent
func (t *Tracker) IdleSince(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastSeen)
}

// Touch records that the client is still there
func (t *Tracker) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen = t.clock.Now()
}

// Flush records elapsed active time and credits whole minutes.
// It returns the minutes credited by this call.
func (t *Tracker) Flush(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0, nil
	}
	return t.flushLocked(ctx, false)
}

// SetPlaying reports a play/pause change from the player
func (t *Tracker) SetPlaying(ctx context.Context, playing bool) error {
	_, err := t.setState(ctx, func() { t.playing = playing })
	return err
}

// SetVisible reports a page visibility change
func (t *Tracker) SetVisible(ctx context.Context, visible bool) error {
	_, err := t.setState(ctx, func() { t.visible = visible })
	return err
}

// Update applies a client report in one step. A nil field is left unchanged;
// with both nil the report is only a heartbeat. It returns the minutes credited.
func (t *Tracker) Update(ctx context.Context, playing, visible *bool) (int, error) {
	if playing == nil && visible == nil {
		t.Touch()
		return 0, nil
	}
	return t.setState(ctx, func() {
		if playing != nil {
			t.playing = *playing
		}
		if visible != nil {
			t.visible = *visible
		}
	})
}

// Stop performs the final flush. Later calls are no-ops.
func (t *Tracker) Stop(ctx context.Context, completed bool) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0, nil
	}
	t.completed = completed
	credited, err := t.flushLocked(ctx, true)
	t.stopped = true
	t.logger.Info("Watch tracking stopped",
		"watched_seconds", t.accumulated,
		"completed", completed)
	return credited, err
}

// Snapshot returns the current state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:              t.params.ID,
		VideoID:         t.params.VideoID,
		Type:            t.params.Variant,
		StartedAt:       t.startedAt,
		WatchedSeconds:  t.accumulated,
		CreditedMinutes: t.credited / 60,
		Playing:         t.playing,
		Visible:         t.visible,
		LastFlush:       t.lastFlush,
		Stopped:         t.stopped,
	}
}

func (t *Tracker) setState(ctx context.Context, apply func()) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0, nil
	}
	t.lastSeen = t.clock.Now()

	wasActive := t.activeLocked()
	var (
		credited int
		err      error
	)
	if wasActive {
		// count time up to the change before anything else
		credited, err = t.flushLocked(ctx, false)
	}
	apply()
	if !wasActive && t.activeLocked() {
		t.sessionStart = t.clock.Now()
		t.nextFlush = t.sessionStart.Add(t.params.Interval)
	}
	return credited, err
}

func (t *Tracker) activeLocked() bool {
	return t.playing && t.visible
}

// flushLocked must be called with t.mu held. force writes the record even
// when no time has elapsed (final flush).
func (t *Tracker) flushLocked(ctx context.Context, force bool) (int, error) {
	now := t.clock.Now()
	t.nextFlush = now.Add(t.params.Interval)

	elapsed := 0
	if t.activeLocked() {
		elapsed = int(now.Sub(t.sessionStart) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		// sub-second remainder stays with the next interval
		t.sessionStart = t.sessionStart.Add(time.Duration(elapsed) * time.Second)
	}
	if elapsed == 0 && !force {
		return 0, nil
	}
	t.accumulated += elapsed

	session := &core.WatchSession{
		UserID:        t.params.UserID,
		VideoID:       t.params.VideoID,
		Type:          t.params.Variant,
		Date:          t.day,
		StartedAt:     t.startedAt,
		LastUpdated:   now,
		WatchDuration: t.accumulated,
		Completed:     t.completed,
	}
	if err := t.store.UpsertWatchSession(ctx, session); err != nil {
		t.logger.Error("Failed to record watch session",
			"watched_seconds", t.accumulated,
			"error", err)
		return 0, fmt.Errorf("record watch session: %w", err)
	}
	t.lastFlush = now

	minutes := (t.accumulated - t.credited) / 60
	if minutes < 1 {
		return 0, nil
	}
	if err := t.store.AddUsage(ctx, t.params.UserID, core.DayKey(now, t.params.Location), minutes); err != nil {
		t.logger.Error("Failed to credit screen time",
			"minutes", minutes,
			"error", err)
		return 0, fmt.Errorf("credit usage: %w", err)
	}
	t.credited += minutes * 60

	t.logger.Debug("Screen time credited",
		"minutes", minutes,
		"watched_seconds", t.accumulated)
	return minutes, nil
}
