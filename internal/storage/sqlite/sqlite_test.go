package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"choicetube/internal/core"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestSQLiteStorage_VideoList(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	// Missing list is empty
	list, err := storage.GetVideoList(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list.Videos)

	// Append assigns order = current length
	ids := []string{"aaaaaaaaaaa", "bbbbbbbbbbb", "ccccccccccc"}
	for i, id := range ids {
		item := &core.VideoItem{ID: id, Type: core.VariantVideo, Title: "T" + id, AddedAt: time.Now()}
		require.NoError(t, storage.AppendVideo(ctx, "user-1", item))
		assert.Equal(t, i, item.Order)
	}

	list, err = storage.GetVideoList(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list.Videos, 3)
	for i, v := range list.Videos {
		assert.Equal(t, ids[i], v.ID)
		assert.Equal(t, i, v.Order)
		assert.Equal(t, core.VariantVideo, v.Type)
	}

	// Lists are per user
	other, err := storage.GetVideoList(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other.Videos)
}

func TestSQLiteStorage_CreateVideoList(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	items := []*core.VideoItem{
		{ID: "FknTw9bJsXM", Type: core.VariantVideo, AddedAt: time.Now()},
		{ID: "5JN7SZ6NETQ", Type: core.VariantShorts, AddedAt: time.Now()},
	}
	created, err := storage.CreateVideoList(ctx, "user-1", items)
	require.NoError(t, err)
	assert.True(t, created)

	// Second create is a no-op
	created, err = storage.CreateVideoList(ctx, "user-1", []*core.VideoItem{
		{ID: "zzzzzzzzzzz", Type: core.VariantVideo, AddedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.False(t, created)

	list, err := storage.GetVideoList(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list.Videos, 2)
	assert.Equal(t, core.VariantShorts, list.Videos[1].Type)

	// Appending continues after seeded items
	item := &core.VideoItem{ID: "ddddddddddd", Type: core.VariantVideo, AddedAt: time.Now()}
	require.NoError(t, storage.AppendVideo(ctx, "user-1", item))
	assert.Equal(t, 2, item.Order)
}

func TestSQLiteStorage_ConcurrentAppend(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := &core.VideoItem{ID: "aaaaaaaaaaa", Type: core.VariantVideo, AddedAt: time.Now()}
			assert.NoError(t, storage.AppendVideo(ctx, "user-1", item))
		}()
	}
	wg.Wait()

	list, err := storage.GetVideoList(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list.Videos, 10)
	for i, v := range list.Videos {
		assert.Equal(t, i, v.Order)
	}
}

func TestSQLiteStorage_ScreenTimeLimits(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.GetScreenTimeLimits(ctx, "user-1")
	assert.ErrorIs(t, err, core.ErrLimitsNotFound)

	limits := &core.ScreenTimeLimit{
		UserID:            "user-1",
		DailyLimitMinutes: 45,
		Enabled:           true,
		Schedules: []*core.Schedule{
			{ID: "sched_1", Name: "Bedtime", StartTime: "21:00", EndTime: "07:00", DaysOfWeek: []int{0, 1, 2}, Action: core.ActionBlock},
		},
		LockMessage:            "Time for a break",
		RequirePassword:        true,
		ParentPasswordHash:     "$2a$10$hash",
		ConsecutiveShortsLimit: 3,
	}
	require.NoError(t, storage.SaveScreenTimeLimits(ctx, limits))

	got, err := storage.GetScreenTimeLimits(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 45, got.DailyLimitMinutes)
	assert.True(t, got.Enabled)
	assert.True(t, got.RequirePassword)
	assert.Equal(t, "$2a$10$hash", got.ParentPasswordHash)
	assert.Equal(t, 3, got.ConsecutiveShortsLimit)
	require.Len(t, got.Schedules, 1)
	assert.Equal(t, "Bedtime", got.Schedules[0].Name)
	assert.Equal(t, []int{0, 1, 2}, got.Schedules[0].DaysOfWeek)
	assert.Equal(t, core.ActionBlock, got.Schedules[0].Action)

	// Save replaces wholesale
	limits.Schedules = nil
	limits.Enabled = false
	limits.UpdatedAt = time.Time{}
	require.NoError(t, storage.SaveScreenTimeLimits(ctx, limits))

	got, err = storage.GetScreenTimeLimits(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Empty(t, got.Schedules)
}

func TestSQLiteStorage_SubscribeLimits(t *testing.T) {
	storage := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []*core.ScreenTimeLimit
	unsubscribe, err := storage.SubscribeLimits(ctx, "user-1", func(l *core.ScreenTimeLimit) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, l)
	})
	require.NoError(t, err)

	// Initial delivery with nothing saved
	mu.Lock()
	require.Len(t, received, 1)
	assert.Nil(t, received[0])
	mu.Unlock()

	require.NoError(t, storage.SaveScreenTimeLimits(ctx, &core.ScreenTimeLimit{UserID: "user-1", DailyLimitMinutes: 30, Enabled: true}))
	// Other users do not notify
	require.NoError(t, storage.SaveScreenTimeLimits(ctx, &core.ScreenTimeLimit{UserID: "user-2", DailyLimitMinutes: 10}))

	mu.Lock()
	require.Len(t, received, 2)
	assert.Equal(t, 30, received[1].DailyLimitMinutes)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, storage.SaveScreenTimeLimits(ctx, &core.ScreenTimeLimit{UserID: "user-1", DailyLimitMinutes: 20}))

	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestSQLiteStorage_SubscribeLimitsContextCancel(t *testing.T) {
	storage := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := storage.SubscribeLimits(ctx, "user-1", func(*core.ScreenTimeLimit) {})
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool {
		storage.mu.Lock()
		defer storage.mu.Unlock()
		return len(storage.subscribers) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSQLiteStorage_Usage(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	usage, err := storage.GetUsage(ctx, "user-1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, 0, usage.TotalMinutes)

	require.NoError(t, storage.AddUsage(ctx, "user-1", "2026-10-17", 2))
	require.NoError(t, storage.AddUsage(ctx, "user-1", "2026-10-17", 3))
	require.NoError(t, storage.AddUsage(ctx, "user-1", "2026-10-17", 0))
	require.NoError(t, storage.AddUsage(ctx, "user-1", "2026-10-18", 7))

	usage, err = storage.GetUsage(ctx, "user-1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, 5, usage.TotalMinutes)
	assert.False(t, usage.LastUpdated.IsZero())

	usage, err = storage.GetUsage(ctx, "user-1", "2026-10-18")
	require.NoError(t, err)
	assert.Equal(t, 7, usage.TotalMinutes)
}

func TestSQLiteStorage_ConcurrentAddUsage(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, storage.AddUsage(ctx, "user-1", "2026-10-17", 1))
		}()
	}
	wg.Wait()

	usage, err := storage.GetUsage(ctx, "user-1", "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, 20, usage.TotalMinutes)
}

func TestSQLiteStorage_WatchSessions(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	started := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	session := &core.WatchSession{
		UserID:        "user-1",
		VideoID:       "dQw4w9WgXcQ",
		Type:          core.VariantVideo,
		Date:          "2026-10-17",
		StartedAt:     started,
		LastUpdated:   started.Add(30 * time.Second),
		WatchDuration: 30,
	}
	require.NoError(t, storage.UpsertWatchSession(ctx, session))

	// Upsert keeps the first StartedAt
	second := *session
	second.StartedAt = started.Add(time.Hour)
	second.LastUpdated = started.Add(time.Hour)
	second.WatchDuration = 90
	second.Completed = true
	require.NoError(t, storage.UpsertWatchSession(ctx, &second))

	other := &core.WatchSession{
		UserID:        "user-1",
		VideoID:       "5JN7SZ6NETQ",
		Type:          core.VariantShorts,
		Date:          "2026-10-16",
		StartedAt:     started.Add(-24 * time.Hour),
		LastUpdated:   started.Add(-24 * time.Hour),
		WatchDuration: 15,
	}
	require.NoError(t, storage.UpsertWatchSession(ctx, other))

	sessions, err := storage.ListWatchSessions(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "dQw4w9WgXcQ", sessions[0].VideoID)
	assert.Equal(t, 90, sessions[0].WatchDuration)
	assert.True(t, sessions[0].Completed)
	assert.True(t, sessions[0].StartedAt.Equal(started))

	limited, err := storage.ListWatchSessions(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	today, err := storage.ListWatchSessionsByDate(ctx, "user-1", "2026-10-16")
	require.NoError(t, err)
	require.Len(t, today, 1)
	assert.Equal(t, core.VariantShorts, today[0].Type)

	none, err := storage.ListWatchSessions(ctx, "user-2", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStorage_PrayerSettings(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	_, err := storage.GetPrayerSettings(ctx, "user-1")
	assert.ErrorIs(t, err, core.ErrPrayerNotFound)

	settings := &core.PrayerTimeSettings{
		UserID:      "user-1",
		Latitude:    21.4225,
		Longitude:   39.8262,
		Method:      4,
		School:      1,
		Enabled:     true,
		PauseVideos: true,
	}
	require.NoError(t, storage.SavePrayerSettings(ctx, settings))

	got, err := storage.GetPrayerSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 21.4225, got.Latitude)
	assert.Equal(t, 39.8262, got.Longitude)
	assert.Equal(t, 4, got.Method)
	assert.Equal(t, 1, got.School)
	assert.True(t, got.Enabled)
	assert.True(t, got.PauseVideos)
	assert.False(t, got.PlayAdhan)

	settings.Enabled = false
	require.NoError(t, storage.SavePrayerSettings(ctx, settings))
	got, err = storage.GetPrayerSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}
