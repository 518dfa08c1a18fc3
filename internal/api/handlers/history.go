package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/clock"
	"choicetube/internal/core"
)

// History answers watch-history queries
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]*core.WatchSession, error)
	Stats(ctx context.Context, userID string, now time.Time) (*core.WatchStats, error)
}

// HistoryHandler handles watch history
type HistoryHandler struct {
	history History
	clock   clock.Clock
	logger  *slog.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(history History, clk clock.Clock, logger *slog.Logger) *HistoryHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &HistoryHandler{
		history: history,
		clock:   clk,
		logger:  logger.With("component", "api"),
	}
}

// ListHistory returns the most recently watched sessions
// GET /v1/history?limit=
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	limit := core.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errorJSON(c, http.StatusBadRequest, "limit must be a positive integer", "INVALID_LIMIT")
			return
		}
		limit = n
	}

	sessions, err := h.history.Recent(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve history", err)
		return
	}
	if sessions == nil {
		sessions = []*core.WatchSession{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetStats returns today's watch time and the most watched videos
// GET /v1/history/stats
func (h *HistoryHandler) GetStats(c *gin.Context) {
	stats, err := h.history.Stats(c.Request.Context(), currentUser(c), h.clock.Now())
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve watch stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
