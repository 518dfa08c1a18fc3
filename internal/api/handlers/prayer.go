package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/enforce"
	"choicetube/internal/prayer"
)

// PrayerSettingsReader reads a user's prayer settings
type PrayerSettingsReader interface {
	GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error)
}

// PrayerHandler serves prayer times for the user's stored settings
type PrayerHandler struct {
	settings PrayerSettingsReader
	times    enforce.TimesSource
	clock    clock.Clock
	location *time.Location
	logger   *slog.Logger
}

// NewPrayerHandler creates a new prayer handler
func NewPrayerHandler(settings PrayerSettingsReader, times enforce.TimesSource, clk clock.Clock, location *time.Location, logger *slog.Logger) *PrayerHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	if location == nil {
		location = time.Local
	}
	return &PrayerHandler{
		settings: settings,
		times:    times,
		clock:    clk,
		location: location,
		logger:   logger.With("component", "api"),
	}
}

// GetTimes returns today's schedule for the stored location and method
// GET /v1/prayer/times
func (h *PrayerHandler) GetTimes(c *gin.Context) {
	settings, times, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"times":   times,
		"method":  settings.Method,
		"school":  settings.School,
		"enabled": settings.Enabled,
	})
}

// GetStatus reports whether a prayer window is active now
// GET /v1/prayer/status
func (h *PrayerHandler) GetStatus(c *gin.Context) {
	settings, err := h.settings.GetPrayerSettings(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve prayer settings", err)
		return
	}
	if !settings.Enabled {
		c.JSON(http.StatusOK, gin.H{"enabled": false, "active": false})
		return
	}

	_, times, ok := h.load(c)
	if !ok {
		return
	}
	active, inWindow := prayer.ActiveAt(times, h.clock.Now().In(h.location))
	body := gin.H{"enabled": true, "active": inWindow}
	if inWindow {
		body["prayer"] = enforce.NewPrayerAlert(active, settings)
	}
	c.JSON(http.StatusOK, body)
}

// load fetches settings and today's times, writing the error response itself
func (h *PrayerHandler) load(c *gin.Context) (*core.PrayerTimeSettings, *core.PrayerTimes, bool) {
	ctx := c.Request.Context()
	settings, err := h.settings.GetPrayerSettings(ctx, currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve prayer settings", err)
		return nil, nil, false
	}
	if !settings.HasCoordinates() {
		errorJSON(c, http.StatusConflict, "Set a location first", "LOCATION_REQUIRED")
		return nil, nil, false
	}

	times, err := h.times.Timings(ctx, h.clock.Now(), settings)
	if err != nil {
		h.logger.Warn("Prayer times unavailable", "user_id", currentUser(c), "error", err)
		errorJSON(c, http.StatusServiceUnavailable, "Prayer times are unavailable", "PRAYER_TIMES_UNAVAILABLE")
		return nil, nil, false
	}
	return settings, times, true
}
