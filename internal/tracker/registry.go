package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/idgen"
)

// ErrNotFound is returned for unknown or foreign tracker IDs
var ErrNotFound = errors.New("watch tracker not found")

// FlushListener is notified after every successful flush with the minutes it credited
type FlushListener func(userID string, credited int)

// RegistryConfig configures a Registry
type RegistryConfig struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	Location    *time.Location
}

// Registry owns the trackers of all active playbacks
type Registry struct {
	mu        sync.RWMutex
	trackers  map[string]*Tracker
	listeners []FlushListener

	store  Store
	clock  clock.Clock
	config RegistryConfig
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(store Store, clk clock.Clock, config RegistryConfig, logger *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultFlushInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 2 * time.Minute
	}
	return &Registry{
		trackers: make(map[string]*Tracker),
		store:    store,
		clock:    clk,
		config:   config,
		logger:   logger,
	}
}

// OnFlush registers a listener for flushes
func (r *Registry) OnFlush(fn FlushListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Start begins tracking a playback and returns its tracker
func (r *Registry) Start(userID, videoID string, variant core.VideoVariant) *Tracker {
	t := New(Params{
		ID:       idgen.NewWatch(),
		UserID:   userID,
		VideoID:  videoID,
		Variant:  variant,
		Interval: r.config.Interval,
		Location: r.config.Location,
	}, r.store, r.clock, r.logger)

	r.mu.Lock()
	r.trackers[t.ID()] = t
	r.mu.Unlock()

	r.logger.Info("Watch tracking started",
		"component", "tracker",
		"watch_id", t.ID(),
		"user_id", userID,
		"video_id", videoID,
		"type", variant)
	return t
}

// Get returns the tracker if it belongs to userID
func (r *Registry) Get(id, userID string) (*Tracker, error) {
	r.mu.RLock()
	t, ok := r.trackers[id]
	r.mu.RUnlock()
	if !ok || t.UserID() != userID {
		return nil, ErrNotFound
	}
	return t, nil
}

// Stop final-flushes the tracker and forgets it
func (r *Registry) Stop(ctx context.Context, id, userID string, completed bool) (Snapshot, error) {
	t, err := r.Get(id, userID)
	if err != nil {
		return Snapshot{}, err
	}
	r.remove(id)

	credited, err := t.Stop(ctx, completed)
	if err == nil {
		r.notify(userID, credited)
	}
	return t.Snapshot(), err
}

// Update applies a client state report to the tracker. Listeners are
// notified when the report credited minutes.
func (r *Registry) Update(ctx context.Context, id, userID string, playing, visible *bool) (Snapshot, error) {
	t, err := r.Get(id, userID)
	if err != nil {
		return Snapshot{}, err
	}
	credited, err := t.Update(ctx, playing, visible)
	if err == nil && credited > 0 {
		r.notify(userID, credited)
	}
	return t.Snapshot(), err
}

// Flush flushes one tracker and notifies listeners
func (r *Registry) Flush(ctx context.Context, t *Tracker) error {
	credited, err := t.Flush(ctx)
	if err == nil {
		r.notify(t.UserID(), credited)
	}
	return err
}

// FlushDue flushes every tracker whose interval has elapsed.
// Errors are logged by the trackers and retried on the next pass.
func (r *Registry) FlushDue(ctx context.Context) int {
	now := r.clock.Now()
	flushed := 0
	for _, t := range r.snapshot() {
		if !t.Due(now) {
			continue
		}
		if err := r.Flush(ctx, t); err == nil {
			flushed++
		}
	}
	return flushed
}

// SweepIdle final-flushes trackers whose client stopped reporting
func (r *Registry) SweepIdle(ctx context.Context) int {
	now := r.clock.Now()
	swept := 0
	for _, t := range r.snapshot() {
		if t.IdleSince(now) < r.config.IdleTimeout {
			continue
		}
		r.remove(t.ID())
		credited, err := t.Stop(ctx, false)
		if err == nil {
			r.notify(t.UserID(), credited)
		}
		r.logger.Info("Idle watch tracker closed",
			"component", "tracker",
			"watch_id", t.ID(),
			"user_id", t.UserID())
		swept++
	}
	return swept
}

// StopAll final-flushes every tracker, used on shutdown
func (r *Registry) StopAll(ctx context.Context) {
	for _, t := range r.snapshot() {
		r.remove(t.ID())
		if _, err := t.Stop(ctx, false); err != nil {
			r.logger.Error("Final flush failed on shutdown",
				"component", "tracker",
				"watch_id", t.ID(),
				"error", err)
		}
	}
}

// Active returns the number of tracked playbacks
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trackers)
}

func (r *Registry) snapshot() []*Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		list = append(list, t)
	}
	return list
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, id)
}

// notify runs listeners after every successful flush, credited or not
func (r *Registry) notify(userID string, credited int) {
	r.mu.RLock()
	listeners := make([]FlushListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(userID, credited)
	}
}
