package core

import (
	"context"

	"choicetube/internal/youtube"
)

// VideoListStore persists per-user video lists
type VideoListStore interface {
	// GetVideoList returns the user's list; a missing list yields an empty one
	GetVideoList(ctx context.Context, userID string) (*VideoList, error)
	// AppendVideo appends item, assigning Order = current list length
	AppendVideo(ctx context.Context, userID string, item *VideoItem) error
	// CreateVideoList creates the list with the given items if none exists
	CreateVideoList(ctx context.Context, userID string, items []*VideoItem) (bool, error)
}

// LimitsStore persists screen-time limits
type LimitsStore interface {
	GetScreenTimeLimits(ctx context.Context, userID string) (*ScreenTimeLimit, error)
	SaveScreenTimeLimits(ctx context.Context, limits *ScreenTimeLimit) error
	// SubscribeLimits calls fn with the current limits and again on every change
	// until the returned function is called or ctx is done
	SubscribeLimits(ctx context.Context, userID string, fn func(*ScreenTimeLimit)) (func(), error)
}

// UsageStore persists daily screen-time usage
type UsageStore interface {
	// GetUsage returns the usage for day; a missing record yields zero minutes
	GetUsage(ctx context.Context, userID, day string) (*ScreenTimeUsage, error)
	// AddUsage atomically adds minutes to the day's total
	AddUsage(ctx context.Context, userID, day string, minutes int) error
}

// WatchStore persists watch sessions
type WatchStore interface {
	// UpsertWatchSession merges the session under its key, keeping the original StartedAt
	UpsertWatchSession(ctx context.Context, session *WatchSession) error
	// ListWatchSessions returns the most recently updated sessions; limit <= 0 means all
	ListWatchSessions(ctx context.Context, userID string, limit int) ([]*WatchSession, error)
	ListWatchSessionsByDate(ctx context.Context, userID, day string) ([]*WatchSession, error)
}

// PrayerSettingsStore persists prayer-time settings
type PrayerSettingsStore interface {
	GetPrayerSettings(ctx context.Context, userID string) (*PrayerTimeSettings, error)
	SavePrayerSettings(ctx context.Context, settings *PrayerTimeSettings) error
}

// VideoMetadata is optional descriptive data about a video
type VideoMetadata = youtube.Metadata

// MetadataProvider looks up video metadata
type MetadataProvider interface {
	Lookup(ctx context.Context, videoID string) (*VideoMetadata, error)
}
