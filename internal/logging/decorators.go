package logging

import (
	"context"
	"log/slog"
	"time"

	"choicetube/internal/core"
	"choicetube/internal/storage"
)

// StorageLogger wraps a Storage and logs every call with its duration.
// Reads log at debug level, writes at info, failures at error.
type StorageLogger struct {
	storage.Storage
	logger *slog.Logger
}

// NewStorageLogger creates a new logging decorator for Storage
func NewStorageLogger(s storage.Storage, logger *slog.Logger) storage.Storage {
	return &StorageLogger{
		Storage: s,
		logger:  logger.With("interface", "Storage"),
	}
}

func (l *StorageLogger) done(op string, start time.Time, err error, write bool, attrs ...any) {
	attrs = append(attrs, "duration", time.Since(start))
	if err != nil {
		l.logger.Error(op+" failed", append(attrs, "error", err)...)
		return
	}
	if write {
		l.logger.Info(op+" completed", attrs...)
		return
	}
	l.logger.Debug(op+" completed", attrs...)
}

func (l *StorageLogger) GetVideoList(ctx context.Context, userID string) (*core.VideoList, error) {
	start := time.Now()
	list, err := l.Storage.GetVideoList(ctx, userID)
	count := 0
	if list != nil {
		count = len(list.Videos)
	}
	l.done("GetVideoList", start, err, false, "user_id", userID, "videos", count)
	return list, err
}

func (l *StorageLogger) AppendVideo(ctx context.Context, userID string, item *core.VideoItem) error {
	start := time.Now()
	err := l.Storage.AppendVideo(ctx, userID, item)
	l.done("AppendVideo", start, err, true,
		"user_id", userID,
		"video_id", item.ID,
		"type", item.Type,
		"order", item.Order)
	return err
}

func (l *StorageLogger) CreateVideoList(ctx context.Context, userID string, items []*core.VideoItem) (bool, error) {
	start := time.Now()
	created, err := l.Storage.CreateVideoList(ctx, userID, items)
	l.done("CreateVideoList", start, err, created, "user_id", userID, "created", created)
	return created, err
}

func (l *StorageLogger) GetScreenTimeLimits(ctx context.Context, userID string) (*core.ScreenTimeLimit, error) {
	start := time.Now()
	limits, err := l.Storage.GetScreenTimeLimits(ctx, userID)
	if err == core.ErrLimitsNotFound {
		l.done("GetScreenTimeLimits", start, nil, false, "user_id", userID, "found", false)
		return limits, err
	}
	l.done("GetScreenTimeLimits", start, err, false, "user_id", userID)
	return limits, err
}

func (l *StorageLogger) SaveScreenTimeLimits(ctx context.Context, limits *core.ScreenTimeLimit) error {
	start := time.Now()
	err := l.Storage.SaveScreenTimeLimits(ctx, limits)
	l.done("SaveScreenTimeLimits", start, err, true,
		"user_id", limits.UserID,
		"enabled", limits.Enabled,
		"daily_limit", limits.DailyLimitMinutes)
	return err
}

func (l *StorageLogger) SubscribeLimits(ctx context.Context, userID string, fn func(*core.ScreenTimeLimit)) (func(), error) {
	start := time.Now()
	unsubscribe, err := l.Storage.SubscribeLimits(ctx, userID, fn)
	l.done("SubscribeLimits", start, err, false, "user_id", userID)
	return unsubscribe, err
}

func (l *StorageLogger) GetUsage(ctx context.Context, userID, day string) (*core.ScreenTimeUsage, error) {
	start := time.Now()
	usage, err := l.Storage.GetUsage(ctx, userID, day)
	l.done("GetUsage", start, err, false, "user_id", userID, "date", day)
	return usage, err
}

func (l *StorageLogger) AddUsage(ctx context.Context, userID, day string, minutes int) error {
	start := time.Now()
	err := l.Storage.AddUsage(ctx, userID, day, minutes)
	l.done("AddUsage", start, err, true, "user_id", userID, "date", day, "minutes", minutes)
	return err
}

func (l *StorageLogger) UpsertWatchSession(ctx context.Context, session *core.WatchSession) error {
	start := time.Now()
	err := l.Storage.UpsertWatchSession(ctx, session)
	// flushes are frequent, so success stays at debug
	l.done("UpsertWatchSession", start, err, false,
		"user_id", session.UserID,
		"key", session.Key(),
		"watch_duration", session.WatchDuration)
	return err
}

func (l *StorageLogger) ListWatchSessions(ctx context.Context, userID string, limit int) ([]*core.WatchSession, error) {
	start := time.Now()
	sessions, err := l.Storage.ListWatchSessions(ctx, userID, limit)
	l.done("ListWatchSessions", start, err, false, "user_id", userID, "limit", limit, "count", len(sessions))
	return sessions, err
}

func (l *StorageLogger) ListWatchSessionsByDate(ctx context.Context, userID, day string) ([]*core.WatchSession, error) {
	start := time.Now()
	sessions, err := l.Storage.ListWatchSessionsByDate(ctx, userID, day)
	l.done("ListWatchSessionsByDate", start, err, false, "user_id", userID, "date", day, "count", len(sessions))
	return sessions, err
}

func (l *StorageLogger) GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error) {
	start := time.Now()
	settings, err := l.Storage.GetPrayerSettings(ctx, userID)
	if err == core.ErrPrayerNotFound {
		l.done("GetPrayerSettings", start, nil, false, "user_id", userID, "found", false)
		return settings, err
	}
	l.done("GetPrayerSettings", start, err, false, "user_id", userID)
	return settings, err
}

func (l *StorageLogger) SavePrayerSettings(ctx context.Context, settings *core.PrayerTimeSettings) error {
	start := time.Now()
	err := l.Storage.SavePrayerSettings(ctx, settings)
	l.done("SavePrayerSettings", start, err, true,
		"user_id", settings.UserID,
		"enabled", settings.Enabled,
		"method", settings.Method)
	return err
}
