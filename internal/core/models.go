package core

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// VideoVariant distinguishes standard videos from shorts
type VideoVariant string

const (
	VariantVideo  VideoVariant = "video"
	VariantShorts VideoVariant = "shorts"
)

// ScheduleAction is what a matching schedule does to viewing
type ScheduleAction string

const (
	ActionBlock ScheduleAction = "block"
	ActionLimit ScheduleAction = "limit"
)

// Defaults applied when a user has no stored settings yet
const (
	DefaultDailyLimitMinutes      = 60
	DefaultLockMessage            = "Daily screen time limit reached. Come back tomorrow!"
	DefaultConsecutiveShortsLimit = 5
	DefaultPrayerMethod           = 2 // ISNA
	DefaultPrayerSchool           = 0 // Shafi
)

// DayKeyLayout is the layout of per-day document keys
const DayKeyLayout = "2006-01-02"

// VideoItem is one entry of a user's curated list
type VideoItem struct {
	ID        string       `json:"id"`
	Type      VideoVariant `json:"type"`
	Title     string       `json:"title,omitempty"`
	Thumbnail string       `json:"thumbnail,omitempty"`
	Order     int          `json:"order"`
	AddedAt   time.Time    `json:"addedAt"`
}

// VideoList is the ordered list owned by a single user
type VideoList struct {
	UserID    string       `json:"userId"`
	Videos    []*VideoItem `json:"videos"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Schedule is a recurring weekly window with an action
type Schedule struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	StartTime  string         `json:"startTime"`  // "HH:MM"
	EndTime    string         `json:"endTime"`    // "HH:MM"
	DaysOfWeek []int          `json:"daysOfWeek"` // 0 = Sunday
	Action     ScheduleAction `json:"action"`
}

// ScreenTimeLimit holds a user's screen-time configuration
type ScreenTimeLimit struct {
	UserID                 string      `json:"userId"`
	DailyLimitMinutes      int         `json:"dailyLimitMinutes"`
	Enabled                bool        `json:"enabled"`
	Schedules              []*Schedule `json:"schedules"`
	LockMessage            string      `json:"lockMessage"`
	RequirePassword        bool        `json:"requirePassword"`
	ParentPasswordHash     string      `json:"-"` // bcrypt
	ConsecutiveShortsLimit int         `json:"consecutiveShortsLimit"`
	UpdatedAt              time.Time   `json:"updatedAt"`
}

// ScreenTimeUsage is the accumulated viewing minutes for one user and day
type ScreenTimeUsage struct {
	UserID       string    `json:"userId"`
	Date         string    `json:"date"` // YYYY-MM-DD
	TotalMinutes int       `json:"totalMinutes"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// PrayerTimeSettings configures the prayer-time monitor for a user
type PrayerTimeSettings struct {
	UserID      string    `json:"userId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Method      int       `json:"method"`
	School      int       `json:"school"`
	Enabled     bool      `json:"enabled"`
	PauseVideos bool      `json:"pauseVideos"`
	PlayAdhan   bool      `json:"playAdhan"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasCoordinates reports whether a location has been configured
func (p *PrayerTimeSettings) HasCoordinates() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Coordinates is a geographic position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PrayerTimes is one day's schedule, all values "HH:MM" local
type PrayerTimes struct {
	Fajr    string `json:"fajr"`
	Sunrise string `json:"sunrise"`
	Dhuhr   string `json:"dhuhr"`
	Asr     string `json:"asr"`
	Maghrib string `json:"maghrib"`
	Isha    string `json:"isha"`
	Date    string `json:"date"`

	// IANA zone of the location; the clock values are local to it
	Timezone string `json:"timezone,omitempty"`
}

// Location returns the zone the times are expressed in, or fallback when
// it is unknown
func (p *PrayerTimes) Location(fallback *time.Location) *time.Location {
	if p == nil || p.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// WatchSession is the per-video, per-day watch record
type WatchSession struct {
	UserID        string       `json:"userId"`
	VideoID       string       `json:"videoId"`
	Type          VideoVariant `json:"type"`
	Date          string       `json:"date"`
	StartedAt     time.Time    `json:"startedAt"`
	LastUpdated   time.Time    `json:"lastUpdated"`
	WatchDuration int          `json:"watchDuration"` // seconds
	Completed     bool         `json:"completed"`
}

// Key returns the document key of the session
func (w *WatchSession) Key() string {
	return SessionKey(w.VideoID, w.Date)
}

// VideoStats aggregates watch sessions for one video
type VideoStats struct {
	VideoID    string       `json:"videoId"`
	Type       VideoVariant `json:"type"`
	TotalWatch int          `json:"totalWatchSeconds"`
	Sessions   int          `json:"sessions"`
	LastWatch  time.Time    `json:"lastWatched"`
}

// Validation and lookup errors
var (
	ErrInvalidVideoURL     = errors.New("no video identifier found")
	ErrInvalidVariant      = errors.New("video type must be video or shorts")
	ErrInvalidSchedule     = errors.New("invalid schedule")
	ErrInvalidDailyLimit   = errors.New("daily limit cannot be negative")
	ErrInvalidShortsLimit  = errors.New("consecutive shorts limit cannot be negative")
	ErrInvalidCoordinates  = errors.New("coordinates out of range")
	ErrInvalidMethod       = errors.New("invalid calculation method")
	ErrInvalidSchool       = errors.New("school must be 0 (Shafi) or 1 (Hanafi)")
	ErrLimitsNotFound      = errors.New("screen time limits not found")
	ErrPrayerNotFound      = errors.New("prayer settings not found")
	ErrSessionNotFound     = errors.New("watch session not found")
	ErrPasswordMismatch    = errors.New("incorrect password")
	ErrNotOverridable      = errors.New("current lock cannot be overridden")
	ErrPasswordNotSet      = errors.New("parent password is not set")
	ErrLocationUnavailable = errors.New("location unavailable")
)

// Validate validates a VideoVariant
func (v VideoVariant) Validate() error {
	if v != VariantVideo && v != VariantShorts {
		return ErrInvalidVariant
	}
	return nil
}

// Validate validates a Schedule
func (s *Schedule) Validate() error {
	if _, err := ParseClock(s.StartTime); err != nil {
		return fmt.Errorf("%w: start time: %v", ErrInvalidSchedule, err)
	}
	if _, err := ParseClock(s.EndTime); err != nil {
		return fmt.Errorf("%w: end time: %v", ErrInvalidSchedule, err)
	}
	for _, d := range s.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day of week %d", ErrInvalidSchedule, d)
		}
	}
	if s.Action != ActionBlock && s.Action != ActionLimit {
		return fmt.Errorf("%w: action %q", ErrInvalidSchedule, s.Action)
	}
	return nil
}

// Validate validates a ScreenTimeLimit
func (l *ScreenTimeLimit) Validate() error {
	if l.DailyLimitMinutes < 0 {
		return ErrInvalidDailyLimit
	}
	if l.ConsecutiveShortsLimit < 0 {
		return ErrInvalidShortsLimit
	}
	for _, s := range l.Schedules {
		if s == nil {
			return fmt.Errorf("%w: empty schedule", ErrInvalidSchedule)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates PrayerTimeSettings
func (p *PrayerTimeSettings) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	if p.Method < 0 || p.Method > 23 {
		return ErrInvalidMethod
	}
	if p.School != 0 && p.School != 1 {
		return ErrInvalidSchool
	}
	return nil
}

// DefaultScreenTimeLimit returns the limits a user gets before saving any
func DefaultScreenTimeLimit(userID string) *ScreenTimeLimit {
	return &ScreenTimeLimit{
		UserID:                 userID,
		DailyLimitMinutes:      DefaultDailyLimitMinutes,
		Enabled:                false,
		Schedules:              []*Schedule{},
		LockMessage:            DefaultLockMessage,
		RequirePassword:        false,
		ConsecutiveShortsLimit: DefaultConsecutiveShortsLimit,
	}
}

// DefaultPrayerTimeSettings returns the prayer settings a user gets before saving any
func DefaultPrayerTimeSettings(userID string) *PrayerTimeSettings {
	return &PrayerTimeSettings{
		UserID:      userID,
		Method:      DefaultPrayerMethod,
		School:      DefaultPrayerSchool,
		Enabled:     false,
		PauseVideos: true,
		PlayAdhan:   true,
	}
}

// DayKey formats the per-day key of t in loc
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayKeyLayout)
}

// SessionKey builds the watch-session key "{videoId}_{YYYY-MM-DD}"
func SessionKey(videoID, day string) string {
	return videoID + "_" + day
}
