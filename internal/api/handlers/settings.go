package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"choicetube/internal/core"
)

// Settings reads and writes a user's screen-time and prayer settings
type Settings interface {
	GetLimits(ctx context.Context, userID string) (*core.ScreenTimeLimit, error)
	SaveLimits(ctx context.Context, userID string, update core.LimitsUpdate) (*core.ScreenTimeLimit, error)
	GetPrayerSettings(ctx context.Context, userID string) (*core.PrayerTimeSettings, error)
	SavePrayerSettings(ctx context.Context, userID string, settings core.PrayerTimeSettings) (*core.PrayerTimeSettings, error)
	SetPrayerLocation(ctx context.Context, userID string, coords core.Coordinates) (*core.PrayerTimeSettings, error)
}

// Locator resolves a client address to coordinates
type Locator interface {
	Locate(ctx context.Context, ip string) (core.Coordinates, error)
}

// PrayerReloader tells live monitors that prayer settings changed
type PrayerReloader interface {
	Reload(userID string)
}

// SettingsHandler handles the settings pages
type SettingsHandler struct {
	settings Settings
	locator  Locator
	reloader PrayerReloader
	logger   *slog.Logger
}

// NewSettingsHandler creates a new settings handler. reloader may be nil.
func NewSettingsHandler(settings Settings, locator Locator, reloader PrayerReloader, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		locator:  locator,
		reloader: reloader,
		logger:   logger.With("component", "api"),
	}
}

// limitsResponse never exposes the password hash, only whether one is set
type limitsResponse struct {
	*core.ScreenTimeLimit
	HasParentPassword bool `json:"hasParentPassword"`
}

func newLimitsResponse(l *core.ScreenTimeLimit) limitsResponse {
	return limitsResponse{ScreenTimeLimit: l, HasParentPassword: l.ParentPasswordHash != ""}
}

// GetScreenTime returns the user's limits, or defaults
// GET /v1/settings/screen-time
func (h *SettingsHandler) GetScreenTime(c *gin.Context) {
	limits, err := h.settings.GetLimits(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve screen time settings", err)
		return
	}
	c.JSON(http.StatusOK, newLimitsResponse(limits))
}

// PutScreenTime replaces the user's limits. parentPassword is optional:
// absent keeps the stored password, empty clears it.
// PUT /v1/settings/screen-time
func (h *SettingsHandler) PutScreenTime(c *gin.Context) {
	var req struct {
		core.ScreenTimeLimit
		ParentPassword *string `json:"parentPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	limits, err := h.settings.SaveLimits(c.Request.Context(), currentUser(c), core.LimitsUpdate{
		Limits:         req.ScreenTimeLimit,
		ParentPassword: req.ParentPassword,
	})
	if err != nil {
		if !validationError(c, err) {
			internalError(c, h.logger, "Failed to save screen time settings", err)
		}
		return
	}
	c.JSON(http.StatusOK, newLimitsResponse(limits))
}

// GetPrayer returns the user's prayer settings, or defaults
// GET /v1/settings/prayer
func (h *SettingsHandler) GetPrayer(c *gin.Context) {
	settings, err := h.settings.GetPrayerSettings(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve prayer settings", err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// PutPrayer replaces the user's prayer settings
// PUT /v1/settings/prayer
func (h *SettingsHandler) PutPrayer(c *gin.Context) {
	var req core.PrayerTimeSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	userID := currentUser(c)
	settings, err := h.settings.SavePrayerSettings(c.Request.Context(), userID, req)
	if err != nil {
		if !validationError(c, err) {
			internalError(c, h.logger, "Failed to save prayer settings", err)
		}
		return
	}
	h.reload(userID)
	c.JSON(http.StatusOK, settings)
}

// LocatePrayer fills the prayer coordinates from the client's address
// POST /v1/settings/prayer/locate
func (h *SettingsHandler) LocatePrayer(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)

	coords, err := h.locator.Locate(ctx, c.ClientIP())
	if err != nil {
		if errors.Is(err, core.ErrLocationUnavailable) {
			errorJSON(c, http.StatusServiceUnavailable, "Location could not be determined", "LOCATION_UNAVAILABLE")
			return
		}
		internalError(c, h.logger, "Failed to locate client", err)
		return
	}

	settings, err := h.settings.SetPrayerLocation(ctx, userID, coords)
	if err != nil {
		if !validationError(c, err) {
			internalError(c, h.logger, "Failed to save prayer location", err)
		}
		return
	}

	h.logger.Info("Prayer location updated", "user_id", userID)
	h.reload(userID)
	c.JSON(http.StatusOK, settings)
}

func (h *SettingsHandler) reload(userID string) {
	if h.reloader != nil {
		h.reloader.Reload(userID)
	}
}
