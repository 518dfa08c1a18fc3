package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"choicetube/internal/core"
	"choicetube/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers map[string]map[int]func(*core.ScreenTimeLimit)
	nextSubID   int
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps AddUsage increments and list appends serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{
		db:          db,
		subscribers: make(map[string]map[int]func(*core.ScreenTimeLimit)),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS video_lists (
			user_id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS video_items (
			user_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			video_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			thumbnail TEXT NOT NULL DEFAULT '',
			added_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, position),
			FOREIGN KEY (user_id) REFERENCES video_lists(user_id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS screen_time_limits (
			user_id TEXT PRIMARY KEY,
			daily_limit_minutes INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			schedules TEXT NOT NULL DEFAULT '[]',
			lock_message TEXT NOT NULL DEFAULT '',
			require_password INTEGER NOT NULL DEFAULT 0,
			parent_password_hash TEXT NOT NULL DEFAULT '',
			consecutive_shorts_limit INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS screen_time_usage (
			user_id TEXT NOT NULL,
			date TEXT NOT NULL,
			total_minutes INTEGER NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL,
			PRIMARY KEY (user_id, date)
		);

		CREATE TABLE IF NOT EXISTS watch_sessions (
			user_id TEXT NOT NULL,
			session_key TEXT NOT NULL,
			video_id TEXT NOT NULL,
			type TEXT NOT NULL,
			date TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			last_updated DATETIME NOT NULL,
			watch_duration INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, session_key)
		);

		CREATE TABLE IF NOT EXISTS prayer_settings (
			user_id TEXT PRIMARY KEY,
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			method INTEGER NOT NULL,
			school INTEGER NOT NULL,
			enabled INTEGER NOT NULL,
			pause_videos INTEGER NOT NULL,
			play_adhan INTEGER NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_watch_sessions_updated ON watch_sessions(user_id, last_updated);
		CREATE INDEX IF NOT EXISTS idx_watch_sessions_date ON watch_sessions(user_id, date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetVideoList returns the user's list ordered by position
func (s *SQLiteStorage) GetVideoList(ctx context.Context, userID string) (*core.VideoList, error) {
	list := &core.VideoList{UserID: userID, Videos: []*core.VideoItem{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, updated_at FROM video_lists WHERE user_id = ?
	`, userID).Scan(&list.CreatedAt, &list.UpdatedAt)
	if err == sql.ErrNoRows {
		return list, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, video_id, type, title, thumbnail, added_at
		FROM video_items WHERE user_id = ? ORDER BY position
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item core.VideoItem
		if err := rows.Scan(&item.Order, &item.ID, &item.Type, &item.Title, &item.Thumbnail, &item.AddedAt); err != nil {
			return nil, err
		}
		list.Videos = append(list.Videos, &item)
	}

	return list, rows.Err()
}

// AppendVideo appends item at the end of the user's list
func (s *SQLiteStorage) AppendVideo(ctx context.Context, userID string, item *core.VideoItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO video_lists (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET updated_at = excluded.updated_at
	`, userID, now, now); err != nil {
		return fmt.Errorf("failed to upsert video list: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM video_items WHERE user_id = ?
	`, userID).Scan(&count); err != nil {
		return err
	}

	item.Order = count
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO video_items (user_id, position, video_id, type, title, thumbnail, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, userID, item.Order, item.ID, item.Type, item.Title, item.Thumbnail, item.AddedAt); err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	return tx.Commit()
}

// CreateVideoList creates the list with items unless one already exists
func (s *SQLiteStorage) CreateVideoList(ctx context.Context, userID string, items []*core.VideoItem) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO video_lists (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, now, now)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	for i, item := range items {
		item.Order = i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO video_items (user_id, position, video_id, type, title, thumbnail, added_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, userID, item.Order, item.ID, item.Type, item.Title, item.Thumbnail, item.AddedAt); err != nil {
			return false, fmt.Errorf("failed to insert video: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetScreenTimeLimits retrieves a user's limits
func (s *SQLiteStorage) GetScreenTimeLimits(ctx context.Context, userID string) (*core.ScreenTimeLimit, error) {
	var limits core.ScreenTimeLimit
	var schedulesJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, daily_limit_minutes, enabled, schedules, lock_message, require_password,
		       parent_password_hash, consecutive_shorts_limit, updated_at
		FROM screen_time_limits WHERE user_id = ?
	`, userID).Scan(&limits.UserID, &limits.DailyLimitMinutes, &limits.Enabled, &schedulesJSON,
		&limits.LockMessage, &limits.RequirePassword, &limits.ParentPasswordHash,
		&limits.ConsecutiveShortsLimit, &limits.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrLimitsNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(schedulesJSON), &limits.Schedules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedules: %w", err)
	}
	if limits.Schedules == nil {
		limits.Schedules = []*core.Schedule{}
	}

	return &limits, nil
}

// SaveScreenTimeLimits replaces a user's limits and notifies subscribers
func (s *SQLiteStorage) SaveScreenTimeLimits(ctx context.Context, limits *core.ScreenTimeLimit) error {
	schedules := limits.Schedules
	if schedules == nil {
		schedules = []*core.Schedule{}
	}
	schedulesJSON, err := json.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("failed to marshal schedules: %w", err)
	}
	if limits.UpdatedAt.IsZero() {
		limits.UpdatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO screen_time_limits (user_id, daily_limit_minutes, enabled, schedules, lock_message,
		                                require_password, parent_password_hash, consecutive_shorts_limit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			daily_limit_minutes = excluded.daily_limit_minutes,
			enabled = excluded.enabled,
			schedules = excluded.schedules,
			lock_message = excluded.lock_message,
			require_password = excluded.require_password,
			parent_password_hash = excluded.parent_password_hash,
			consecutive_shorts_limit = excluded.consecutive_shorts_limit,
			updated_at = excluded.updated_at
	`, limits.UserID, limits.DailyLimitMinutes, limits.Enabled, string(schedulesJSON), limits.LockMessage,
		limits.RequirePassword, limits.ParentPasswordHash, limits.ConsecutiveShortsLimit, limits.UpdatedAt)
	if err != nil {
		return err
	}

	s.notifyLimits(ctx, limits.UserID)
	return nil
}

// SubscribeLimits delivers the current limits (nil when none are saved) and
// every later save until unsubscribed or ctx is done
func (s *SQLiteStorage) SubscribeLimits(ctx context.Context, userID string, fn func(*core.ScreenTimeLimit)) (func(), error) {
	current, err := s.GetScreenTimeLimits(ctx, userID)
	if err != nil && err != core.ErrLimitsNotFound {
		return nil, err
	}

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	if s.subscribers[userID] == nil {
		s.subscribers[userID] = make(map[int]func(*core.ScreenTimeLimit))
	}
	s.subscribers[userID][id] = fn
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers[userID], id)
			if len(s.subscribers[userID]) == 0 {
				delete(s.subscribers, userID)
			}
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return unsubscribe, nil
}

func (s *SQLiteStorage) notifyLimits(ctx context.Context, userID string) {
	s.mu.Lock()
	fns := make([]func(*core.ScreenTimeLimit), 0, len(s.subscribers[userID]))
	for _, fn := range s.subscribers[userID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	limits, err := s.GetScreenTimeLimits(ctx, userID)
	if err != nil {
		return
	}
	for _, fn := range fns {
		fn(limits)
	}
}

// GetUsage retrieves usage for a day; a missing row yields zero minutes
func (s *SQLiteStorage) GetUsage(ctx context.Context, userID, day string) (*core.ScreenTimeUsage, error) {
	usage := core.ScreenTimeUsage{UserID: userID, Date: day}

	err := s.db.QueryRowContext(ctx, `
		SELECT total_minutes, last_updated FROM screen_time_usage WHERE user_id = ? AND date = ?
	`, userID, day).Scan(&usage.TotalMinutes, &usage.LastUpdated)

	if err == sql.ErrNoRows {
		return &usage, nil
	}
	if err != nil {
		return nil, err
	}

	return &usage, nil
}

// AddUsage atomically adds minutes to the day's usage
func (s *SQLiteStorage) AddUsage(ctx context.Context, userID, day string, minutes int) error {
	if minutes <= 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO screen_time_usage (user_id, date, total_minutes, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			total_minutes = total_minutes + excluded.total_minutes,
			last_updated = excluded.last_updated
	`, userID, day, minutes, time.Now())

	return err
}

// UpsertWatchSession merges a session, keeping the first StartedAt
func (s *SQLiteStorage) UpsertWatchSession(ctx context.Context, session *core.WatchSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watch_sessions (user_id, session_key, video_id, type, date, started_at,
		                            last_updated, watch_duration, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_key) DO UPDATE SET
			type = excluded.type,
			last_updated = excluded.last_updated,
			watch_duration = excluded.watch_duration,
			completed = excluded.completed
	`, session.UserID, session.Key(), session.VideoID, session.Type, session.Date, session.StartedAt,
		session.LastUpdated, session.WatchDuration, session.Completed)

	return err
}

// ListWatchSessions returns sessions by most recent update; limit <= 0 means all
func (s *SQLiteStorage) ListWatchSessions(ctx context.Context, userID string, limit int) ([]*core.WatchSession, error) {
	query := `
		SELECT user_id, video_id, type, date, started_at, last_updated, watch_duration, completed
		FROM watch_sessions WHERE user_id = ?
		ORDER BY last_updated DESC
	`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWatchSessions(rows)
}

// ListWatchSessionsByDate returns all sessions of one day
func (s *SQLiteStorage) ListWatchSessionsByDate(ctx context.Context, userID, day string) ([]*core.WatchSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, video_id, type, date, started_at, last_updated, watch_duration, completed
		FROM watch_sessions WHERE user_id = ? AND date = ?
		ORDER BY last_updated DESC
	`, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWatchSessions(rows)
}

func scanWatchSessions(rows *sql.Rows) ([]*core.WatchSession, error) {
	sessions := []*core.WatchSession{}
	for rows.Next() {
		var ws core.WatchSession
		if err := rows.Scan(&ws.UserID, &ws.VideoID, &ws.Type, &ws.Date, &ws.StartedAt,
			&ws.LastUpdated, &ws.WatchDuration, &ws.Completed); err != nil {
			return nil, err
		}
		sessions = append(sessions, &ws)
	}
	return sessions, rows.Err()
}

// GetPrayerSettings retrieves a user's prayer settings
func (s *SQLiteStorage) GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error) {
	var p core.PrayerTimeSettings

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, latitude, longitude, method, school, enabled, pause_videos, play_adhan, updated_at
		FROM prayer_settings WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.Latitude, &p.Longitude, &p.Method, &p.School,
		&p.Enabled, &p.PauseVideos, &p.PlayAdhan, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrPrayerNotFound
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// SavePrayerSettings replaces a user's prayer settings
func (s *SQLiteStorage) SavePrayerSettings(ctx context.Context, p *core.PrayerTimeSettings) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prayer_settings (user_id, latitude, longitude, method, school, enabled,
		                             pause_videos, play_adhan, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			method = excluded.method,
			school = excluded.school,
			enabled = excluded.enabled,
			pause_videos = excluded.pause_videos,
			play_adhan = excluded.play_adhan,
			updated_at = excluded.updated_at
	`, p.UserID, p.Latitude, p.Longitude, p.Method, p.School, p.Enabled,
		p.PauseVideos, p.PlayAdhan, p.UpdatedAt)

	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
