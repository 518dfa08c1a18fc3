package storage

import (
	"choicetube/internal/core"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Video lists
	core.VideoListStore

	// Screen-time limits and usage
	core.LimitsStore
	core.UsageStore

	// Watch history
	core.WatchStore

	// Prayer settings
	core.PrayerSettingsStore

	// Lifecycle
	Close() error
}
