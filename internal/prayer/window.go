package prayer

import (
	"time"

	"choicetube/internal/core"
)

// WindowMinutes is the half-width of a prayer window
const WindowMinutes = 5

// Name is one of the five daily prayers
type Name string

const (
	Fajr    Name = "Fajr"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Active describes the prayer whose window contains now
type Active struct {
	Name Name   `json:"name"`
	Time string `json:"time"`
}

// ActiveAt returns the first prayer, in day order, with |now - time| <= 5 minutes.
// now is read in the schedule's own timezone when it is known, otherwise in
// now's location. Sunrise is not a prayer and is never returned.
func ActiveAt(times *core.PrayerTimes, now time.Time) (Active, bool) {
	if times == nil {
		return Active{}, false
	}
	current := core.MinutesOfDay(now.In(times.Location(now.Location())))
	ordered := []Active{
		{Fajr, times.Fajr},
		{Dhuhr, times.Dhuhr},
		{Asr, times.Asr},
		{Maghrib, times.Maghrib},
		{Isha, times.Isha},
	}
	for _, p := range ordered {
		at, err := core.ParseClock(p.Time)
		if err != nil {
			continue
		}
		diff := current - at
		if diff < 0 {
			diff = -diff
		}
		if diff <= WindowMinutes {
			return p, true
		}
	}
	return Active{}, false
}
