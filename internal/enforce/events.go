// Package enforce runs the live per-user monitors that decide when viewing
// must stop: the screen-time policy monitor and the prayer-time monitor.
package enforce

import (
	"time"

	"choicetube/internal/core"
	"choicetube/internal/prayer"
)

// EventType identifies a monitor event
type EventType string

const (
	EventPolicy       EventType = "policy"
	EventPrayer       EventType = "prayer"
	EventPrayerEnded  EventType = "prayer_ended"
	EventUnlockFailed EventType = "unlock_failed"
)

// PrayerDismissAfter is how long a prayer overlay stays up without interaction
const PrayerDismissAfter = 5 * time.Minute

// Event is pushed to connected clients
type Event struct {
	Type     EventType      `json:"type"`
	Decision *core.Decision `json:"decision,omitempty"`
	Prayer   *PrayerAlert   `json:"prayer,omitempty"`
	Error    string         `json:"error,omitempty"`
	At       time.Time      `json:"at"`
}

// PrayerAlert describes an active prayer window
type PrayerAlert struct {
	Name                prayer.Name `json:"name"`
	Time                string      `json:"time"`
	PauseVideos         bool        `json:"pauseVideos"`
	PlayAdhan           bool        `json:"playAdhan"`
	DismissAfterSeconds int         `json:"dismissAfterSeconds"`
}

// Publisher receives monitor events
type Publisher func(Event)

// NewPrayerAlert describes an active window using the user's overlay settings
func NewPrayerAlert(active prayer.Active, settings *core.PrayerTimeSettings) *PrayerAlert {
	alert := &PrayerAlert{
		Name:                active.Name,
		Time:                active.Time,
		DismissAfterSeconds: int(PrayerDismissAfter.Seconds()),
	}
	if settings != nil {
		alert.PauseVideos = settings.PauseVideos
		alert.PlayAdhan = settings.PlayAdhan
	}
	return alert
}
