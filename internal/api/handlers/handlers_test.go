package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"choicetube/internal/api/middleware"
	"choicetube/internal/auth"
	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/storage/sqlite"
	"choicetube/internal/tracker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testUser    = "kid-1"
	testViewing = "view-1"
	testVideoID = "dQw4w9WgXcQ"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTimes returns fixed prayer times
type fakeTimes struct {
	times *core.PrayerTimes
	err   error
	calls int
}

func (f *fakeTimes) Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error) {
	f.calls++
	return f.times, f.err
}

type fakeLocator struct {
	coords core.Coordinates
	err    error
	ip     string
}

func (f *fakeLocator) Locate(ctx context.Context, ip string) (core.Coordinates, error) {
	f.ip = ip
	return f.coords, f.err
}

// fakeLive stands in for the stream hub
type fakeLive struct {
	decision core.Decision
	has      bool
	unlockFn func(password string) (core.Decision, bool, error)
	reloaded []string
}

func (f *fakeLive) Decision(userID string) (core.Decision, bool) {
	return f.decision, f.has
}

func (f *fakeLive) Unlock(userID, password string) (core.Decision, bool, error) {
	if f.unlockFn == nil {
		return core.Decision{}, false, nil
	}
	return f.unlockFn(password)
}

func (f *fakeLive) Reload(userID string) {
	f.reloaded = append(f.reloaded, userID)
}

type unlockCall struct {
	userID string
	err    error
}

type fixture struct {
	store    *sqlite.SQLiteStorage
	settings *core.SettingsService
	videos   *core.VideoListService
	history  *core.HistoryService
	trackers *tracker.Registry
	viewing  *core.ViewingSessions
	clock    *clock.Mock
	times    *fakeTimes
	locator  *fakeLocator
	live     *fakeLive
	unlocks  []unlockCall
	router   *gin.Engine
}

// setup builds a router whose requests are already authenticated as testUser.
// withLive makes a live policy available to the handlers.
func setup(t *testing.T, withLive bool) *fixture {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := discardLogger()
	clk := clock.NewMock(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	evaluator := core.NewPolicyEvaluator(time.UTC)

	f := &fixture{
		store:    store,
		settings: core.NewSettingsService(store, store, store, evaluator, logger),
		videos:   core.NewVideoListService(store, nil, logger),
		history:  core.NewHistoryService(store, time.UTC),
		trackers: tracker.NewRegistry(store, clk, tracker.RegistryConfig{Location: time.UTC}, logger),
		viewing:  core.NewViewingSessions(30 * time.Minute),
		clock:    clk,
		times: &fakeTimes{times: &core.PrayerTimes{
			Fajr: "05:10", Sunrise: "06:30", Dhuhr: "12:02", Asr: "15:20",
			Maghrib: "18:05", Isha: "19:30", Date: "02-03-2026",
		}},
		locator: &fakeLocator{coords: core.Coordinates{Latitude: 21.42, Longitude: 39.83}},
	}

	var (
		live     LivePolicy
		reloader PrayerReloader
	)
	if withLive {
		f.live = &fakeLive{}
		live, reloader = f.live, f.live
	}
	onUnlock := func(userID string, decision core.Decision, err error) {
		f.unlocks = append(f.unlocks, unlockCall{userID: userID, err: err})
	}

	router := gin.New()
	authed := router.Group("/v1", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, testUser)
		c.Set(middleware.ViewingSessionKey, testViewing)
		c.Next()
	})

	videos := NewVideosHandler(f.videos, logger)
	authed.GET("/videos", videos.ListVideos)
	authed.POST("/videos", videos.AddVideo)
	authed.POST("/videos/share", videos.ShareVideo)

	settings := NewSettingsHandler(f.settings, f.locator, reloader, logger)
	authed.GET("/settings/screen-time", settings.GetScreenTime)
	authed.PUT("/settings/screen-time", settings.PutScreenTime)
	authed.GET("/settings/prayer", settings.GetPrayer)
	authed.PUT("/settings/prayer", settings.PutPrayer)
	authed.POST("/settings/prayer/locate", settings.LocatePrayer)

	screenTime := NewScreenTimeHandler(f.settings, live, onUnlock, logger)
	authed.GET("/screen-time/usage", screenTime.GetUsage)
	authed.GET("/screen-time/status", screenTime.GetStatus)
	authed.POST("/screen-time/unlock", screenTime.Unlock)

	prayerHandler := NewPrayerHandler(f.settings, f.times, clk, time.UTC, logger)
	authed.GET("/prayer/times", prayerHandler.GetTimes)
	authed.GET("/prayer/status", prayerHandler.GetStatus)

	watch := NewWatchHandler(f.trackers, f.viewing, f.settings, live, clk, logger)
	authed.POST("/watch", watch.StartWatch)
	authed.POST("/watch/:id/state", watch.UpdateWatch)
	authed.POST("/watch/:id/stop", watch.StopWatch)

	history := NewHistoryHandler(f.history, clk, logger)
	authed.GET("/history", history.ListHistory)
	authed.GET("/history/stats", history.GetStats)

	health := NewHealthHandler(f.trackers.Active)
	router.GET("/health", health.GetHealth)

	f.router = router
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.7:52000"
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func (f *fixture) saveLimits(t *testing.T, body map[string]any) {
	t.Helper()
	w := f.do(t, http.MethodPut, "/v1/settings/screen-time", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// exhausted is an enabled zero-minute quota with a parent password
func exhausted() map[string]any {
	return map[string]any{
		"enabled":                true,
		"dailyLimitMinutes":      0,
		"requirePassword":        true,
		"parentPassword":         "Secret1",
		"consecutiveShortsLimit": 2,
	}
}

func TestHealth(t *testing.T) {
	f := setup(t, false)
	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "choicetube", body["service"])
	assert.Equal(t, float64(0), body["activeWatches"])
}

func TestVideos(t *testing.T) {
	f := setup(t, false)

	// defaults before anything is added
	w := f.do(t, http.MethodGet, "/v1/videos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	videos := decode(t, w)["videos"].([]any)
	assert.Len(t, videos, len(core.DefaultVideos))

	w = f.do(t, http.MethodPost, "/v1/videos", map[string]any{
		"url":  "https://www.youtube.com/shorts/" + testVideoID,
		"type": "shorts",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, testVideoID, decode(t, w)["id"])

	w = f.do(t, http.MethodGet, "/v1/videos?type=shorts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	for _, v := range decode(t, w)["videos"].([]any) {
		assert.Equal(t, "shorts", v.(map[string]any)["type"])
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad type filter", http.MethodGet, "/v1/videos?type=movie", nil, http.StatusBadRequest, "INVALID_VIDEO_TYPE"},
		{"missing url", http.MethodPost, "/v1/videos", map[string]any{"type": "video"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unparseable url", http.MethodPost, "/v1/videos", map[string]any{"url": "not a video"}, http.StatusBadRequest, "INVALID_VIDEO_URL"},
		{"bad type", http.MethodPost, "/v1/videos", map[string]any{"url": testVideoID, "type": "movie"}, http.StatusBadRequest, "INVALID_VIDEO_TYPE"},
		{"empty share", http.MethodPost, "/v1/videos/share", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestShareVideo(t *testing.T) {
	f := setup(t, false)
	w := f.do(t, http.MethodPost, "/v1/videos/share", map[string]any{
		"title": "Look at this",
		"text":  "https://youtu.be/" + testVideoID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, testVideoID, decode(t, w)["id"])
}

func TestScreenTimeSettings(t *testing.T) {
	f := setup(t, false)

	w := f.do(t, http.MethodGet, "/v1/settings/screen-time", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["enabled"])
	assert.Equal(t, false, body["hasParentPassword"])

	f.saveLimits(t, exhausted())
	w = f.do(t, http.MethodGet, "/v1/settings/screen-time", nil)
	body = decode(t, w)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, true, body["hasParentPassword"])
	assert.NotContains(t, w.Body.String(), "$2a$", "hash must never be exposed")

	// omitting the password keeps it
	w = f.do(t, http.MethodPut, "/v1/settings/screen-time", map[string]any{"enabled": true, "dailyLimitMinutes": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["hasParentPassword"])

	// an empty password clears it
	w = f.do(t, http.MethodPut, "/v1/settings/screen-time", map[string]any{"enabled": true, "parentPassword": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["hasParentPassword"])

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{"negative limit", map[string]any{"dailyLimitMinutes": -1}, "INVALID_DAILY_LIMIT"},
		{"negative shorts limit", map[string]any{"consecutiveShortsLimit": -2}, "INVALID_SHORTS_LIMIT"},
		{"bad schedule", map[string]any{"schedules": []map[string]any{
			{"name": "Night", "startTime": "25:00", "endTime": "07:00", "action": "block"},
		}}, "INVALID_SCHEDULE"},
		{"null schedule", map[string]any{"schedules": []any{nil}}, "INVALID_SCHEDULE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPut, "/v1/settings/screen-time", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestUnlock_StoredPolicy(t *testing.T) {
	f := setup(t, false)

	// nothing to unlock while allowed
	w := f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "Secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_OVERRIDABLE", decode(t, w)["code"])

	f.saveLimits(t, exhausted())
	w = f.do(t, http.MethodGet, "/v1/screen-time/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(core.StateBreakRequired), decode(t, w)["state"])

	tests := []struct {
		name     string
		password any
		status   int
		code     string
	}{
		{"missing password", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong case", "secret1", http.StatusForbidden, "INCORRECT_PASSWORD"},
		{"correct", "Secret1", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]any{}
			if tt.password != nil {
				body["password"] = tt.password
			}
			w := f.do(t, http.MethodPost, "/v1/screen-time/unlock", body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode(t, w)["code"])
			} else {
				assert.Equal(t, string(core.StateAllowed), decode(t, w)["state"])
			}
		})
	}

	// every evaluated attempt is observed
	require.Len(t, f.unlocks, 3)
	assert.ErrorIs(t, f.unlocks[0].err, core.ErrNotOverridable)
	assert.ErrorIs(t, f.unlocks[1].err, core.ErrPasswordMismatch)
	assert.NoError(t, f.unlocks[2].err)
	assert.Equal(t, testUser, f.unlocks[2].userID)
}

func TestUnlock_PasswordNotSet(t *testing.T) {
	f := setup(t, false)
	limits := exhausted()
	delete(limits, "parentPassword")
	f.saveLimits(t, limits)

	w := f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "anything"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PASSWORD_NOT_SET", decode(t, w)["code"])
}

func TestUnlock_LivePolicy(t *testing.T) {
	f := setup(t, true)
	f.live.unlockFn = func(password string) (core.Decision, bool, error) {
		if password != "Secret1" {
			return core.Decision{State: core.StateBreakRequired}, true, core.ErrPasswordMismatch
		}
		return core.Decision{State: core.StateAllowed}, true, nil
	}

	w := f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "Secret1"})
	assert.Equal(t, http.StatusOK, w.Code)

	// the hub reports live attempts itself
	assert.Empty(t, f.unlocks)
}

func TestStatus_LiveDecisionWins(t *testing.T) {
	f := setup(t, true)
	f.saveLimits(t, exhausted())

	f.live.decision = core.Decision{State: core.StateAllowed}
	f.live.has = true

	w := f.do(t, http.MethodGet, "/v1/screen-time/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(core.StateAllowed), decode(t, w)["state"])

	f.live.has = false
	w = f.do(t, http.MethodGet, "/v1/screen-time/status", nil)
	assert.Equal(t, string(core.StateBreakRequired), decode(t, w)["state"])
}

func TestUsage(t *testing.T) {
	f := setup(t, false)
	w := f.do(t, http.MethodGet, "/v1/screen-time/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["totalMinutes"])
}

func TestPrayerSettings(t *testing.T) {
	f := setup(t, true)

	w := f.do(t, http.MethodGet, "/v1/settings/prayer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["enabled"])

	w = f.do(t, http.MethodPut, "/v1/settings/prayer", map[string]any{
		"enabled": true, "latitude": 51.5, "longitude": -0.12, "method": 2, "school": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["school"])
	assert.Equal(t, []string{testUser}, f.live.reloaded)

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{"latitude out of range", map[string]any{"latitude": 91}, "INVALID_COORDINATES"},
		{"unknown method", map[string]any{"method": 99}, "INVALID_METHOD"},
		{"unknown school", map[string]any{"school": 3}, "INVALID_SCHOOL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPut, "/v1/settings/prayer", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestLocatePrayer(t *testing.T) {
	f := setup(t, true)

	w := f.do(t, http.MethodPost, "/v1/settings/prayer/locate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.InDelta(t, 21.42, body["latitude"], 0.0001)
	assert.InDelta(t, 39.83, body["longitude"], 0.0001)
	assert.Equal(t, "203.0.113.7", f.locator.ip)
	assert.Equal(t, []string{testUser}, f.live.reloaded)

	f.locator.err = core.ErrLocationUnavailable
	w = f.do(t, http.MethodPost, "/v1/settings/prayer/locate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "LOCATION_UNAVAILABLE", decode(t, w)["code"])

	f.locator.err = errors.New("boom")
	w = f.do(t, http.MethodPost, "/v1/settings/prayer/locate", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPrayerTimes(t *testing.T) {
	f := setup(t, false)

	w := f.do(t, http.MethodGet, "/v1/prayer/times", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LOCATION_REQUIRED", decode(t, w)["code"])

	w = f.do(t, http.MethodPut, "/v1/settings/prayer", map[string]any{
		"enabled": true, "latitude": 21.42, "longitude": 39.83, "method": 4, "pauseVideos": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/prayer/times", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "12:02", body["times"].(map[string]any)["dhuhr"])
	assert.Equal(t, float64(4), body["method"])

	// 12:00 is within five minutes of Dhuhr
	w = f.do(t, http.MethodGet, "/v1/prayer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["active"])
	alert := body["prayer"].(map[string]any)
	assert.Equal(t, "Dhuhr", alert["name"])
	assert.Equal(t, true, alert["pauseVideos"])

	f.clock.Advance(time.Hour)
	w = f.do(t, http.MethodGet, "/v1/prayer/status", nil)
	body = decode(t, w)
	assert.Equal(t, false, body["active"])
	assert.NotContains(t, body, "prayer")

	f.times.err = errors.New("upstream down")
	w = f.do(t, http.MethodGet, "/v1/prayer/times", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "PRAYER_TIMES_UNAVAILABLE", decode(t, w)["code"])
}

func TestPrayerStatus_ScheduleTimezone(t *testing.T) {
	f := setup(t, false)
	f.times.times.Timezone = "Asia/Riyadh"
	w := f.do(t, http.MethodPut, "/v1/settings/prayer", map[string]any{
		"enabled": true, "latitude": 21.42, "longitude": 39.83, "method": 4,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// 12:00 UTC is 15:00 in Riyadh, far from Dhuhr
	w = f.do(t, http.MethodGet, "/v1/prayer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["active"])

	// 09:00 UTC is 12:00 in Riyadh
	f.clock.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	w = f.do(t, http.MethodGet, "/v1/prayer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "Dhuhr", body["prayer"].(map[string]any)["name"])
}

func TestPrayerStatus_Disabled(t *testing.T) {
	f := setup(t, false)
	w := f.do(t, http.MethodGet, "/v1/prayer/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"enabled": false, "active": false}, decode(t, w))
	assert.Zero(t, f.times.calls)
}

func TestWatch_Lifecycle(t *testing.T) {
	f := setup(t, false)

	w := f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	id := body["watchId"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, float64(0), body["shortsCount"])
	assert.Equal(t, 1, f.trackers.Active())

	// heartbeat with no body
	w = f.do(t, http.MethodPost, "/v1/watch/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["playing"])

	f.clock.Advance(90 * time.Second)
	w = f.do(t, http.MethodPost, "/v1/watch/"+id+"/state", map[string]any{"playing": false})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["playing"])
	assert.Equal(t, float64(90), body["watchedSeconds"])

	w = f.do(t, http.MethodPost, "/v1/watch/"+id+"/stop", map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["stopped"])
	assert.Equal(t, 0, f.trackers.Active())

	// the tracker is gone after stop
	w = f.do(t, http.MethodPost, "/v1/watch/"+id+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WATCH_NOT_FOUND", decode(t, w)["code"])

	w = f.do(t, http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decode(t, w)["sessions"].([]any)
	require.Len(t, sessions, 1)
	session := sessions[0].(map[string]any)
	assert.Equal(t, testVideoID, session["videoId"])
	assert.Equal(t, float64(90), session["watchDuration"])
	assert.Equal(t, true, session["completed"])

	w = f.do(t, http.MethodGet, "/v1/history/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, "2026-03-02", stats["date"])
	assert.Equal(t, float64(90), stats["todayWatchSeconds"])
}

func TestWatch_Errors(t *testing.T) {
	f := setup(t, false)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing video", "/v1/watch", map[string]any{}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad video id", "/v1/watch", map[string]any{"videoId": "short"}, http.StatusBadRequest, "INVALID_VIDEO_ID"},
		{"bad type", "/v1/watch", map[string]any{"videoId": testVideoID, "type": "movie"}, http.StatusBadRequest, "INVALID_VIDEO_TYPE"},
		{"unknown tracker", "/v1/watch/w_missing/state", map[string]any{"visible": false}, http.StatusNotFound, "WATCH_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestWatch_LockedScreen(t *testing.T) {
	f := setup(t, false)
	f.saveLimits(t, exhausted())

	w := f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	require.Equal(t, http.StatusLocked, w.Code)
	body := decode(t, w)
	assert.Equal(t, "SCREEN_TIME_LOCKED", body["code"])
	assert.Equal(t, string(core.StateBreakRequired), body["decision"].(map[string]any)["state"])
	assert.Equal(t, 0, f.trackers.Active())
}

func TestWatch_BypassedByLiveUnlock(t *testing.T) {
	f := setup(t, true)
	f.saveLimits(t, exhausted())
	f.live.decision = core.Decision{State: core.StateAllowed}
	f.live.has = true

	w := f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestWatch_BypassedByStoredUnlock(t *testing.T) {
	f := setup(t, false)
	f.saveLimits(t, exhausted())

	w := f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "Secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/screen-time/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(core.StateAllowed), decode(t, w)["state"])

	w = f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// credited usage ends the bypass
	day := core.DayKey(time.Now(), time.UTC)
	require.NoError(t, f.store.AddUsage(context.Background(), testUser, day, 1))
	w = f.do(t, http.MethodGet, "/v1/screen-time/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(core.StateBreakRequired), decode(t, w)["state"])

	w = f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	assert.Equal(t, http.StatusLocked, w.Code)

	// saving limits also ends it
	w = f.do(t, http.MethodPost, "/v1/screen-time/unlock", map[string]any{"password": "Secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	f.saveLimits(t, exhausted())
	w = f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID})
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestWatch_ShortsCeiling(t *testing.T) {
	f := setup(t, false)
	f.saveLimits(t, map[string]any{
		"enabled":                true,
		"dailyLimitMinutes":      120,
		"consecutiveShortsLimit": 2,
	})

	start := func(variant string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodPost, "/v1/watch", map[string]any{"videoId": testVideoID, "type": variant})
	}

	for i := 1; i <= 2; i++ {
		w := start("shorts")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, float64(i), decode(t, w)["shortsCount"])
	}

	w := start("shorts")
	require.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "SHORTS_LIMIT_REACHED", body["code"])
	assert.Equal(t, HomePath, body["redirect"])
	assert.Equal(t, float64(3), body["shortsCount"])
	assert.Equal(t, float64(2), body["ceiling"])

	// a regular video ends the run
	w = start("video")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["shortsCount"])
	w = start("shorts")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHistory_Limit(t *testing.T) {
	f := setup(t, false)

	w := f.do(t, http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"sessions":[]}`, w.Body.String())

	for _, raw := range []string{"0", "-3", "ten"} {
		w := f.do(t, http.MethodGet, "/v1/history?limit="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
		assert.Equal(t, "INVALID_LIMIT", decode(t, w)["code"])
	}

	w = f.do(t, http.MethodGet, "/v1/history?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// failingVerifier rejects every credential
type failingVerifier struct{}

func (failingVerifier) VerifySession(ctx context.Context, cookie string) (*auth.Identity, error) {
	return nil, auth.ErrInvalidToken
}

func (failingVerifier) VerifyToken(ctx context.Context, token string) (*auth.Identity, error) {
	return nil, auth.ErrInvalidToken
}

func (failingVerifier) CreateSession(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	return "", auth.ErrInvalidToken
}

type seedRecorder struct {
	seeded []string
	err    error
}

func (s *seedRecorder) SeedDefaults(ctx context.Context, userID string) error {
	s.seeded = append(s.seeded, userID)
	return s.err
}

func TestAuthHandler(t *testing.T) {
	seeds := &seedRecorder{}
	verifier := auth.NewStaticVerifier(map[string]string{"token-1": testUser})

	router := gin.New()
	h := NewAuthHandler(verifier, seeds, time.Hour, true, discardLogger())
	router.POST("/v1/auth/session", h.CreateSession)
	router.DELETE("/v1/auth/session", h.DeleteSession)

	rejecting := NewAuthHandler(failingVerifier{}, seeds, 0, false, discardLogger())
	router.POST("/v1/auth/rejecting", rejecting.CreateSession)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("valid token sets cookie and seeds list", func(t *testing.T) {
		w := post("/v1/auth/session", `{"idToken":"token-1"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, testUser, decode(t, w)["uid"])

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
		assert.Equal(t, "token-1", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, 3600, cookies[0].MaxAge)
		assert.Equal(t, []string{testUser}, seeds.seeded)
	})

	t.Run("seed failure does not fail sign-in", func(t *testing.T) {
		seeds.err = errors.New("store down")
		defer func() { seeds.err = nil }()
		w := post("/v1/auth/session", `{"idToken":"token-1"}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := post("/v1/auth/session", `{"idToken":"forged"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_TOKEN", decode(t, w)["code"])
	})

	t.Run("missing token", func(t *testing.T) {
		w := post("/v1/auth/session", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejecting verifier", func(t *testing.T) {
		w := post("/v1/auth/rejecting", `{"idToken":"token-1"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("logout clears cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/auth/session", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
		assert.Less(t, cookies[0].MaxAge, 0)
	})
}
