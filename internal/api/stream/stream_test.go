package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"choicetube/internal/api/middleware"
	"choicetube/internal/core"
	"choicetube/internal/enforce"
	"choicetube/internal/storage/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noTimes struct{}

func (noTimes) Timings(ctx context.Context, at time.Time, settings *core.PrayerTimeSettings) (*core.PrayerTimes, error) {
	return nil, nil
}

type unlockLog struct {
	mu      sync.Mutex
	results []error
}

func (u *unlockLog) record(userID string, decision core.Decision, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.results = append(u.results, err)
}

func (u *unlockLog) all() []error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]error(nil), u.results...)
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type fixture struct {
	store  *sqlite.SQLiteStorage
	hub    *Hub
	server *httptest.Server
	unlock *unlockLog
}

func setup(t *testing.T, configure ...func(*Hub)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlite.New(filepath.Join(t.TempDir(), "stream.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	evaluator := core.NewPolicyEvaluator(time.UTC)
	settings := core.NewSettingsService(store, store, store, evaluator, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(quietLogger())
	unlocks := &unlockLog{}
	hub.OnUnlock(unlocks.record)
	for _, fn := range configure {
		fn(hub)
	}
	go hub.Run(ctx)
	t.Cleanup(cancel)

	handler := NewHandler(hub, MonitorConfig{
		Limits:         store,
		Usage:          store,
		Evaluator:      evaluator,
		PrayerSettings: settings,
		Times:          noTimes{},
		Location:       time.UTC,
	}, quietLogger())

	router := gin.New()
	router.GET("/v1/stream", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, c.Query("uid"))
		c.Next()
	}, handler.Serve)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{store: store, hub: hub, server: server, unlock: unlocks}
}

func (f *fixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/stream?uid=" + userID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextEvent reads until an event of the wanted type arrives
func nextEvent(t *testing.T, conn *websocket.Conn, want enforce.EventType) enforce.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var ev enforce.Event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", want)
		if ev.Type == want {
			return ev
		}
	}
}

func lockedLimits(t *testing.T, userID string) *core.ScreenTimeLimit {
	t.Helper()
	hash, err := core.HashPassword("Secret1")
	require.NoError(t, err)
	return &core.ScreenTimeLimit{
		UserID:             userID,
		Enabled:            true,
		DailyLimitMinutes:  0,
		RequirePassword:    true,
		ParentPasswordHash: hash,
		Schedules:          []*core.Schedule{},
	}
}

func TestStream_PolicyLifecycle(t *testing.T) {
	f := setup(t)
	conn := f.dial(t, "kid-1")

	ev := nextEvent(t, conn, enforce.EventPolicy)
	require.NotNil(t, ev.Decision)
	assert.Equal(t, core.StateAllowed, ev.Decision.State)
	assert.Eventually(t, func() bool { return f.hub.Connected("kid-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	// a limits change is pushed without polling
	require.NoError(t, f.store.SaveScreenTimeLimits(context.Background(), lockedLimits(t, "kid-1")))
	ev = nextEvent(t, conn, enforce.EventPolicy)
	assert.Equal(t, core.StateBreakRequired, ev.Decision.State)
	assert.True(t, ev.Decision.Overridable)

	// wrong password over the socket
	require.NoError(t, conn.WriteJSON(Message{Type: MessageUnlock, Password: "secret1"}))
	ev = nextEvent(t, conn, enforce.EventUnlockFailed)
	assert.Equal(t, core.ErrPasswordMismatch.Error(), ev.Error)

	// right password through the hub
	decision, found, err := f.hub.Unlock("kid-1", "Secret1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, core.StateAllowed, decision.State)
	ev = nextEvent(t, conn, enforce.EventPolicy)
	assert.Equal(t, core.StateAllowed, ev.Decision.State)

	live, ok := f.hub.Decision("kid-1")
	require.True(t, ok)
	assert.Equal(t, core.StateAllowed, live.State)

	// usage is untouched, so a forced re-evaluation locks again
	f.hub.Trigger("kid-1")
	ev = nextEvent(t, conn, enforce.EventPolicy)
	assert.Equal(t, core.StateBreakRequired, ev.Decision.State)

	require.Eventually(t, func() bool { return len(f.unlock.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	refused := 0
	for _, err := range f.unlock.all() {
		if err != nil {
			assert.ErrorIs(t, err, core.ErrPasswordMismatch)
			refused++
		}
	}
	assert.Equal(t, 1, refused)

	conn.Close()
	assert.Eventually(t, func() bool { return f.hub.Connected("kid-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_UsersAreIsolated(t *testing.T) {
	f := setup(t)
	kid1 := f.dial(t, "kid-1")
	kid2 := f.dial(t, "kid-2")
	nextEvent(t, kid1, enforce.EventPolicy)
	nextEvent(t, kid2, enforce.EventPolicy)

	require.NoError(t, f.store.SaveScreenTimeLimits(context.Background(), lockedLimits(t, "kid-2")))
	ev := nextEvent(t, kid2, enforce.EventPolicy)
	assert.Equal(t, core.StateBreakRequired, ev.Decision.State)

	// kid-1 receives nothing further
	require.NoError(t, kid1.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var other enforce.Event
	assert.Error(t, kid1.ReadJSON(&other))
}

func TestStream_UnlockRateLimited(t *testing.T) {
	f := setup(t, func(h *Hub) { h.SetLimiter(denyAll{}) })
	conn := f.dial(t, "kid-1")
	nextEvent(t, conn, enforce.EventPolicy)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageUnlock, Password: "Secret1"}))
	ev := nextEvent(t, conn, enforce.EventUnlockFailed)
	assert.Equal(t, "too many attempts", ev.Error)
	assert.Empty(t, f.unlock.all())
}

func TestStream_RequiresUser(t *testing.T) {
	f := setup(t)
	resp, err := http.Get(f.server.URL + "/v1/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_UnlockWithoutClients(t *testing.T) {
	hub := NewHub(quietLogger())
	_, found, err := hub.Unlock("nobody", "pw")
	assert.False(t, found)
	assert.NoError(t, err)

	// no clients means these are no-ops
	hub.Trigger("nobody")
	hub.Reload("nobody")
	_, ok := hub.Decision("nobody")
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Connected("nobody"))
}

func TestHub_StoppedRejectsRegistration(t *testing.T) {
	hub := NewHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	client := newClient(hub, nil, "kid-1", quietLogger())
	assert.False(t, hub.Register(client))
	hub.Unregister(client) // must not block
}

func TestClient_PublishAfterClose(t *testing.T) {
	client := newClient(NewHub(quietLogger()), nil, "kid-1", quietLogger())
	client.Close()
	client.Close()
	client.Publish(enforce.Event{Type: enforce.EventPolicy})
	assert.Empty(t, client.send)
}
