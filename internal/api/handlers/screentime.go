package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"choicetube/internal/core"
)

// ScreenTime answers screen-time questions from stored data
type ScreenTime interface {
	TodayUsage(ctx context.Context, userID string) (*core.ScreenTimeUsage, error)
	Status(ctx context.Context, userID string) (core.Decision, *core.ScreenTimeLimit, error)
	Unlock(ctx context.Context, userID, password string) (core.Decision, error)
}

// LivePolicy is the state held by a user's connected monitors
type LivePolicy interface {
	// Decision returns the live decision; ok is false without a connected client
	Decision(userID string) (core.Decision, bool)
	// Unlock applies a parent password; found is false without a connected client
	Unlock(userID, password string) (core.Decision, bool, error)
}

// UnlockListener observes unlock attempts handled without a live monitor
type UnlockListener func(userID string, decision core.Decision, err error)

// policyGate decides whether a user may watch now. A live monitor's
// decision wins over the stored one because it carries any bypass.
type policyGate struct {
	screenTime ScreenTime
	live       LivePolicy
}

func (g policyGate) decide(ctx context.Context, userID string) (core.Decision, *core.ScreenTimeLimit, error) {
	stored, limits, err := g.screenTime.Status(ctx, userID)
	if err != nil {
		return core.Decision{}, nil, err
	}
	if g.live != nil {
		if live, ok := g.live.Decision(userID); ok {
			return live, limits, nil
		}
	}
	return stored, limits, nil
}

// ScreenTimeHandler handles usage, status and parent unlock
type ScreenTimeHandler struct {
	gate     policyGate
	onUnlock UnlockListener
	logger   *slog.Logger
}

// NewScreenTimeHandler creates a new screen-time handler. live and onUnlock may be nil.
func NewScreenTimeHandler(screenTime ScreenTime, live LivePolicy, onUnlock UnlockListener, logger *slog.Logger) *ScreenTimeHandler {
	return &ScreenTimeHandler{
		gate:     policyGate{screenTime: screenTime, live: live},
		onUnlock: onUnlock,
		logger:   logger.With("component", "api"),
	}
}

// GetUsage returns today's accumulated minutes
// GET /v1/screen-time/usage
func (h *ScreenTimeHandler) GetUsage(c *gin.Context) {
	usage, err := h.gate.screenTime.TodayUsage(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve usage", err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// GetStatus returns the current decision
// GET /v1/screen-time/status
func (h *ScreenTimeHandler) GetStatus(c *gin.Context) {
	decision, _, err := h.gate.decide(c.Request.Context(), currentUser(c))
	if err != nil {
		internalError(c, h.logger, "Failed to evaluate screen time", err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// Unlock lifts a break-required lock with the parent password. Without a
// live monitor the bypass holds until usage or the day changes. Stored
// usage is never modified.
// POST /v1/screen-time/unlock
func (h *ScreenTimeHandler) Unlock(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	userID := currentUser(c)
	if h.gate.live != nil {
		if decision, found, err := h.gate.live.Unlock(userID, req.Password); found {
			h.respondUnlock(c, decision, err)
			return
		}
	}

	decision, err := h.gate.screenTime.Unlock(c.Request.Context(), userID, req.Password)
	if h.onUnlock != nil {
		h.onUnlock(userID, decision, err)
	}
	h.respondUnlock(c, decision, err)
}

func (h *ScreenTimeHandler) respondUnlock(c *gin.Context, decision core.Decision, err error) {
	switch {
	case err == nil:
		h.logger.Info("Screen time unlocked", "user_id", currentUser(c))
		c.JSON(http.StatusOK, decision)
	case errors.Is(err, core.ErrPasswordMismatch):
		errorJSON(c, http.StatusForbidden, "Incorrect password", "INCORRECT_PASSWORD")
	case errors.Is(err, core.ErrPasswordNotSet):
		errorJSON(c, http.StatusConflict, "No parent password is set", "PASSWORD_NOT_SET")
	case errors.Is(err, core.ErrNotOverridable):
		errorJSON(c, http.StatusConflict, "The current lock cannot be overridden", "NOT_OVERRIDABLE")
	default:
		internalError(c, h.logger, "Failed to unlock", err)
	}
}
