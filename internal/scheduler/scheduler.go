package scheduler

import (
	"context"
	"log/slog"
	"time"

	"choicetube/internal/clock"
)

// Trackers is the watch tracker registry driven by the scheduler
type Trackers interface {
	FlushDue(ctx context.Context) int
	SweepIdle(ctx context.Context) int
	Active() int
}

// ViewingSessions holds per-browsing-session shorts counters
type ViewingSessions interface {
	Sweep(now time.Time) int
}

// Scheduler drives periodic watch flushes and housekeeping
type Scheduler struct {
	trackers  Trackers
	viewing   ViewingSessions
	clock     clock.Clock
	interval  time.Duration
	sweepEach int
	ticks     int
	stopChan  chan struct{}
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler. Idle sweeps run every sweepEach ticks.
func NewScheduler(trackers Trackers, viewing ViewingSessions, clk clock.Clock, interval time.Duration, sweepEach int, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sweepEach <= 0 {
		sweepEach = 1
	}
	return &Scheduler{
		trackers:  trackers,
		viewing:   viewing,
		clock:     clk,
		interval:  interval,
		sweepEach: sweepEach,
		stopChan:  make(chan struct{}),
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started", "interval", s.interval.String())
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// tick performs one cycle of the scheduler
func (s *Scheduler) tick() {
	ctx := context.Background()

	flushed := s.trackers.FlushDue(ctx)
	if flushed > 0 {
		s.logger.Debug("Scheduler tick",
			"flushed", flushed,
			"active_trackers", s.trackers.Active())
	}

	s.ticks++
	if s.ticks%s.sweepEach != 0 {
		return
	}

	if swept := s.trackers.SweepIdle(ctx); swept > 0 {
		s.logger.Info("Closed idle watch trackers", "count", swept)
	}
	if s.viewing != nil {
		if expired := s.viewing.Sweep(s.clock.Now()); expired > 0 {
			s.logger.Debug("Expired viewing sessions", "count", expired)
		}
	}
}
