package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/api/middleware"
	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/enforce"
	"choicetube/internal/metrics"
)

// MonitorConfig holds what each client's monitors need
type MonitorConfig struct {
	Limits         enforce.LimitsSource
	Usage          enforce.UsageSource
	Evaluator      *core.PolicyEvaluator
	PrayerSettings enforce.PrayerSettingsSource
	Times          enforce.TimesSource
	Clock          clock.Clock
	Location       *time.Location
	PolicyInterval time.Duration
	PrayerInterval time.Duration
}

// Handler upgrades authenticated requests to event streams
type Handler struct {
	hub    *Hub
	config MonitorConfig
	logger *slog.Logger
}

// NewHandler creates a stream handler
func NewHandler(hub *Hub, config MonitorConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real{}
	}
	return &Handler{hub: hub, config: config, logger: logger}
}

// Serve upgrades the connection and starts the client's monitors
// GET /v1/stream
func (h *Handler) Serve(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required",
			"code":  "LOGIN_REQUIRED",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an error response
		h.logger.Warn("WebSocket upgrade failed", "component", "stream", "user_id", userID, "error", err)
		return
	}

	client := newClient(h.hub, conn, userID, h.logger)
	h.attachMonitors(client)

	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel

	if !h.hub.Register(client) {
		cancel()
		conn.Close()
		return
	}

	go client.WritePump()
	go h.runMonitor(ctx, client, "policy", client.policy.Run)
	go h.runMonitor(ctx, client, "prayer", client.prayer.Run)
	go client.ReadPump()
}

func (h *Handler) attachMonitors(client *Client) {
	publish := func(ev enforce.Event) {
		if ev.Type == enforce.EventPolicy && ev.Decision != nil {
			metrics.ObserveDecision(ev.Decision.State)
		}
		client.Publish(ev)
	}

	client.policy = enforce.NewPolicyMonitor(client.UserID, h.config.Limits, h.config.Usage,
		h.config.Evaluator, h.config.Clock, publish, h.logger)
	client.policy.SetInterval(h.config.PolicyInterval)

	client.prayer = enforce.NewPrayerMonitor(client.UserID, h.config.PrayerSettings, h.config.Times,
		h.config.Clock, h.config.Location, publish, h.logger)
	client.prayer.SetInterval(h.config.PrayerInterval)
}

// runMonitor runs one monitor; a monitor that cannot start closes the client
func (h *Handler) runMonitor(ctx context.Context, client *Client, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		client.logger.Error("Monitor failed", "monitor", name, "error", err)
		client.Close()
	}
}
