package core

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PolicyState is the outcome of a screen-time evaluation
type PolicyState string

const (
	StateAllowed       PolicyState = "allowed"
	StateBreakRequired PolicyState = "break_required"
	StateBlocked       PolicyState = "blocked"
)

// Decision is the result of evaluating limits and usage at an instant
type Decision struct {
	State            PolicyState `json:"state"`
	Message          string      `json:"message,omitempty"`
	ScheduleID       string      `json:"scheduleId,omitempty"`
	ScheduleName     string      `json:"scheduleName,omitempty"`
	UsedMinutes      int         `json:"usedMinutes"`
	LimitMinutes     int         `json:"limitMinutes"`
	RemainingMinutes int         `json:"remainingMinutes"`
	Overridable      bool        `json:"overridable"`
	EvaluatedAt      time.Time   `json:"evaluatedAt"`
}

// Locked reports whether viewing must be stopped
func (d Decision) Locked() bool {
	return d.State != StateAllowed
}

// PolicyEvaluator decides whether viewing is allowed right now
type PolicyEvaluator struct {
	timezone *time.Location
}

// NewPolicyEvaluator creates an evaluator working in the given timezone
func NewPolicyEvaluator(timezone *time.Location) *PolicyEvaluator {
	if timezone == nil {
		timezone = time.Local
	}
	return &PolicyEvaluator{timezone: timezone}
}

// Timezone returns the evaluator's timezone
func (e *PolicyEvaluator) Timezone() *time.Location {
	return e.timezone
}

// Evaluate applies, in order: block schedules, the daily quota, then allows.
// Nil or disabled limits always allow.
func (e *PolicyEvaluator) Evaluate(limits *ScreenTimeLimit, usage *ScreenTimeUsage, now time.Time) Decision {
	decision := Decision{State: StateAllowed, EvaluatedAt: now}
	if limits == nil || !limits.Enabled {
		return decision
	}

	used := 0
	if usage != nil {
		used = usage.TotalMinutes
	}
	decision.UsedMinutes = used
	decision.LimitMinutes = limits.DailyLimitMinutes
	if remaining := limits.DailyLimitMinutes - used; remaining > 0 {
		decision.RemainingMinutes = remaining
	}

	local := now.In(e.timezone)
	if sched := MatchSchedule(limits.Schedules, local); sched != nil && sched.Action == ActionBlock {
		decision.State = StateBlocked
		decision.ScheduleID = sched.ID
		decision.ScheduleName = sched.Name
		decision.Message = blockMessage(sched.Name)
		return decision
	}

	if used >= limits.DailyLimitMinutes {
		decision.State = StateBreakRequired
		decision.Overridable = limits.RequirePassword
		decision.Message = limits.LockMessage
		if decision.Message == "" {
			decision.Message = fmt.Sprintf("Daily limit of %d minutes reached. Come back tomorrow!", limits.DailyLimitMinutes)
		}
		return decision
	}

	return decision
}

func blockMessage(name string) string {
	if name == "" {
		return "Videos are blocked during this time"
	}
	return name + " - Videos are blocked during this time"
}

// Unlock checks a parent password against a break-required decision.
// On success it returns an Allowed decision valid until the next evaluation;
// stored usage is never modified.
func (e *PolicyEvaluator) Unlock(limits *ScreenTimeLimit, current Decision, password string) (Decision, error) {
	if current.State != StateBreakRequired || !current.Overridable {
		return current, ErrNotOverridable
	}
	if err := VerifyPassword(limits.ParentPasswordHash, password); err != nil {
		return current, err
	}
	unlocked := current
	unlocked.State = StateAllowed
	unlocked.Message = ""
	unlocked.Overridable = false
	return unlocked, nil
}

// HashPassword hashes a parent password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a password to a stored bcrypt hash (case-sensitive)
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return ErrPasswordNotSet
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	return nil
}
