package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"choicetube/internal/idgen"
)

// LimitsUpdate is a wholesale replacement of a user's limits.
// A nil ParentPassword keeps the stored secret; an empty one clears it.
type LimitsUpdate struct {
	Limits         ScreenTimeLimit
	ParentPassword *string
}

// SettingsService reads and writes per-user settings and evaluates status
type SettingsService struct {
	limits    LimitsStore
	usage     UsageStore
	prayer    PrayerSettingsStore
	evaluator *PolicyEvaluator
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	bypasses map[string]bypass
}

// bypass is a parent unlock granted without a live monitor. It holds while
// the day and the used minutes it was granted against are unchanged.
type bypass struct {
	day  string
	used int
}

// NewSettingsService creates a new settings service
func NewSettingsService(limits LimitsStore, usage UsageStore, prayer PrayerSettingsStore, evaluator *PolicyEvaluator, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{
		limits:    limits,
		usage:     usage,
		prayer:    prayer,
		evaluator: evaluator,
		logger:    logger.With("component", "settings"),
		now:       time.Now,
		bypasses:  make(map[string]bypass),
	}
}

// GetLimits returns stored limits, or defaults when none are saved
func (s *SettingsService) GetLimits(ctx context.Context, userID string) (*ScreenTimeLimit, error) {
	limits, err := s.limits.GetScreenTimeLimits(ctx, userID)
	if errors.Is(err, ErrLimitsNotFound) {
		return DefaultScreenTimeLimit(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return limits, nil
}

// SaveLimits replaces the user's limits
func (s *SettingsService) SaveLimits(ctx context.Context, userID string, update LimitsUpdate) (*ScreenTimeLimit, error) {
	limits := update.Limits
	limits.UserID = userID
	if limits.Schedules == nil {
		limits.Schedules = []*Schedule{}
	}
	for _, sched := range limits.Schedules {
		if sched == nil {
			return nil, fmt.Errorf("%w: empty schedule", ErrInvalidSchedule)
		}
		if sched.ID == "" {
			sched.ID = idgen.NewSchedule()
		}
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	switch {
	case update.ParentPassword == nil:
		current, err := s.limits.GetScreenTimeLimits(ctx, userID)
		if err != nil && !errors.Is(err, ErrLimitsNotFound) {
			return nil, err
		}
		if current != nil {
			limits.ParentPasswordHash = current.ParentPasswordHash
		}
	case *update.ParentPassword == "":
		limits.ParentPasswordHash = ""
	default:
		hash, err := HashPassword(*update.ParentPassword)
		if err != nil {
			return nil, err
		}
		limits.ParentPasswordHash = hash
	}

	limits.UpdatedAt = s.now()
	if err := s.limits.SaveScreenTimeLimits(ctx, &limits); err != nil {
		return nil, fmt.Errorf("failed to save limits: %w", err)
	}
	s.clearBypass(userID)

	s.logger.Info("Screen time limits saved",
		"user_id", userID,
		"enabled", limits.Enabled,
		"daily_limit", limits.DailyLimitMinutes,
		"schedules", len(limits.Schedules))
	return &limits, nil
}

// TodayUsage returns usage for the current day
func (s *SettingsService) TodayUsage(ctx context.Context, userID string) (*ScreenTimeUsage, error) {
	return s.usage.GetUsage(ctx, userID, s.dayKey(s.now()))
}

// Status loads limits and today's usage and evaluates them. A granted
// unlock is honoured until usage or the day changes.
func (s *SettingsService) Status(ctx context.Context, userID string) (Decision, *ScreenTimeLimit, error) {
	decision, limits, err := s.evaluate(ctx, userID)
	if err != nil {
		return Decision{}, nil, err
	}
	if decision.State == StateBreakRequired && decision.Overridable && s.bypassed(userID, decision) {
		decision.State = StateAllowed
		decision.Message = ""
		decision.Overridable = false
	}
	return decision, limits, nil
}

// Unlock checks the parent password against the stored policy and, on
// success, records a bypass that later Status calls honour.
func (s *SettingsService) Unlock(ctx context.Context, userID, password string) (Decision, error) {
	current, limits, err := s.evaluate(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	decision, err := s.evaluator.Unlock(limits, current, password)
	if err != nil {
		return decision, err
	}

	s.mu.Lock()
	s.bypasses[userID] = bypass{day: s.dayKey(current.EvaluatedAt), used: current.UsedMinutes}
	s.mu.Unlock()

	s.logger.Info("Screen time bypass granted", "user_id", userID, "used_minutes", current.UsedMinutes)
	return decision, nil
}

func (s *SettingsService) evaluate(ctx context.Context, userID string) (Decision, *ScreenTimeLimit, error) {
	limits, err := s.GetLimits(ctx, userID)
	if err != nil {
		return Decision{}, nil, err
	}
	now := s.now()
	usage, err := s.usage.GetUsage(ctx, userID, s.dayKey(now))
	if err != nil {
		return Decision{}, nil, err
	}
	return s.evaluator.Evaluate(limits, usage, now), limits, nil
}

func (s *SettingsService) bypassed(userID string, decision Decision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bypasses[userID]
	if !ok {
		return false
	}
	if b.day != s.dayKey(decision.EvaluatedAt) || b.used != decision.UsedMinutes {
		delete(s.bypasses, userID)
		return false
	}
	return true
}

func (s *SettingsService) clearBypass(userID string) {
	s.mu.Lock()
	delete(s.bypasses, userID)
	s.mu.Unlock()
}

func (s *SettingsService) dayKey(t time.Time) string {
	return DayKey(t, s.evaluator.Timezone())
}

// GetPrayerSettings returns stored prayer settings, or defaults
func (s *SettingsService) GetPrayerSettings(ctx context.Context, userID string) (*PrayerTimeSettings, error) {
	settings, err := s.prayer.GetPrayerSettings(ctx, userID)
	if errors.Is(err, ErrPrayerNotFound) {
		return DefaultPrayerTimeSettings(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// SavePrayerSettings replaces the user's prayer settings
func (s *SettingsService) SavePrayerSettings(ctx context.Context, userID string, settings PrayerTimeSettings) (*PrayerTimeSettings, error) {
	settings.UserID = userID
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	settings.UpdatedAt = s.now()
	if err := s.prayer.SavePrayerSettings(ctx, &settings); err != nil {
		return nil, fmt.Errorf("failed to save prayer settings: %w", err)
	}
	s.logger.Info("Prayer settings saved",
		"user_id", userID,
		"enabled", settings.Enabled,
		"method", settings.Method,
		"school", settings.School)
	return &settings, nil
}

// SetPrayerLocation stores coordinates on the user's prayer settings
func (s *SettingsService) SetPrayerLocation(ctx context.Context, userID string, coords Coordinates) (*PrayerTimeSettings, error) {
	settings, err := s.GetPrayerSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings.Latitude = coords.Latitude
	settings.Longitude = coords.Longitude
	return s.SavePrayerSettings(ctx, userID, *settings)
}
