package enforce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"choicetube/internal/clock"
	"choicetube/internal/core"
)

// DefaultPollInterval is how often monitors re-check without a push
const DefaultPollInterval = 60 * time.Second

// LimitsSource streams a user's limits
type LimitsSource interface {
	SubscribeLimits(ctx context.Context, userID string, fn func(*core.ScreenTimeLimit)) (func(), error)
}

// UsageSource reads a user's daily usage
type UsageSource interface {
	GetUsage(ctx context.Context, userID, day string) (*core.ScreenTimeUsage, error)
}

// PolicyMonitor re-evaluates one user's screen-time policy whenever limits
// change, usage is flushed, or the poll interval elapses.
type PolicyMonitor struct {
	userID    string
	limits    LimitsSource
	usage     UsageSource
	evaluator *core.PolicyEvaluator
	clock     clock.Clock
	publish   Publisher
	interval  time.Duration
	logger    *slog.Logger

	trigger chan struct{}

	mu       sync.Mutex
	current  *core.ScreenTimeLimit
	decision core.Decision
	started  bool
}

// NewPolicyMonitor creates a monitor for userID
func NewPolicyMonitor(
	userID string,
	limits LimitsSource,
	usage UsageSource,
	evaluator *core.PolicyEvaluator,
	clk clock.Clock,
	publish Publisher,
	logger *slog.Logger,
) *PolicyMonitor {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publish == nil {
		publish = func(Event) {}
	}
	return &PolicyMonitor{
		userID:    userID,
		limits:    limits,
		usage:     usage,
		evaluator: evaluator,
		clock:     clk,
		publish:   publish,
		interval:  DefaultPollInterval,
		logger:    logger.With("component", "policy-monitor", "user_id", userID),
		trigger:   make(chan struct{}, 1),
		decision:  core.Decision{State: core.StateAllowed},
	}
}

// SetInterval overrides the poll interval
func (m *PolicyMonitor) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Run subscribes to limit changes and evaluates until ctx is done
func (m *PolicyMonitor) Run(ctx context.Context) error {
	unsubscribe, err := m.limits.SubscribeLimits(ctx, m.userID, func(limits *core.ScreenTimeLimit) {
		m.mu.Lock()
		m.current = limits
		m.mu.Unlock()
		m.Trigger()
	})
	if err != nil {
		m.logger.Error("Failed to subscribe to limits", "error", err)
		return err
	}
	defer unsubscribe()

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Policy monitor stopped")
			return nil
		case <-ticker.C:
			m.Evaluate(ctx)
		case <-m.trigger:
			m.Evaluate(ctx)
		}
	}
}

// Trigger requests an immediate re-evaluation; it never blocks
func (m *PolicyMonitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Evaluate recomputes the decision from the latest limits and today's usage.
// A changed decision is published. Usage read failures keep the previous decision.
func (m *PolicyMonitor) Evaluate(ctx context.Context) core.Decision {
	now := m.clock.Now()

	m.mu.Lock()
	limits := m.current
	m.mu.Unlock()

	var usage *core.ScreenTimeUsage
	if limits != nil && limits.Enabled {
		u, err := m.usage.GetUsage(ctx, m.userID, core.DayKey(now, m.evaluator.Timezone()))
		if err != nil {
			m.logger.Warn("Failed to read usage", "error", err)
			return m.Decision()
		}
		usage = u
	}

	decision := m.evaluator.Evaluate(limits, usage, now)

	m.mu.Lock()
	changed := !m.started || changedDecision(m.decision, decision)
	m.decision = decision
	m.started = true
	m.mu.Unlock()

	if changed {
		m.logger.Info("Policy decision changed",
			"state", decision.State,
			"used_minutes", decision.UsedMinutes,
			"limit_minutes", decision.LimitMinutes)
		m.publish(Event{Type: EventPolicy, Decision: &decision, At: now})
	}
	return decision
}

// Unlock applies a parent password to the current decision. On success the
// viewer is allowed until the next evaluation.
func (m *PolicyMonitor) Unlock(password string) (core.Decision, error) {
	now := m.clock.Now()

	m.mu.Lock()
	limits := m.current
	current := m.decision
	m.mu.Unlock()

	if limits == nil {
		m.publish(Event{Type: EventUnlockFailed, Error: core.ErrNotOverridable.Error(), At: now})
		return current, core.ErrNotOverridable
	}

	unlocked, err := m.evaluator.Unlock(limits, current, password)
	if err != nil {
		m.logger.Warn("Unlock refused", "error", err)
		m.publish(Event{Type: EventUnlockFailed, Error: err.Error(), At: now})
		return current, err
	}

	unlocked.EvaluatedAt = now
	m.mu.Lock()
	m.decision = unlocked
	m.mu.Unlock()

	m.logger.Info("Unlocked by parent password")
	m.publish(Event{Type: EventPolicy, Decision: &unlocked, At: now})
	return unlocked, nil
}

// Decision returns the latest decision
func (m *PolicyMonitor) Decision() core.Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision
}

// Evaluated reports whether the first evaluation has completed
func (m *PolicyMonitor) Evaluated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

func changedDecision(prev, next core.Decision) bool {
	return prev.State != next.State ||
		prev.Message != next.Message ||
		prev.Overridable != next.Overridable ||
		prev.UsedMinutes != next.UsedMinutes ||
		prev.LimitMinutes != next.LimitMinutes
}
