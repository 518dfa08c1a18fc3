package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/api/middleware"
	"choicetube/internal/clock"
	"choicetube/internal/core"
	"choicetube/internal/tracker"
	"choicetube/internal/youtube"
)

// HomePath is where clients are sent when the shorts ceiling is exceeded
const HomePath = "/"

// Trackers owns the tracked playbacks
type Trackers interface {
	Start(userID, videoID string, variant core.VideoVariant) *tracker.Tracker
	Update(ctx context.Context, id, userID string, playing, visible *bool) (tracker.Snapshot, error)
	Stop(ctx context.Context, id, userID string, completed bool) (tracker.Snapshot, error)
}

// ShortsViews counts consecutive shorts per browsing session
type ShortsViews interface {
	RecordView(sessionID string, variant core.VideoVariant, now time.Time) int
}

// WatchHandler starts, updates and stops watch tracking
type WatchHandler struct {
	trackers Trackers
	views    ShortsViews
	gate     policyGate
	clock    clock.Clock
	logger   *slog.Logger
}

// NewWatchHandler creates a new watch handler. live may be nil.
func NewWatchHandler(trackers Trackers, views ShortsViews, screenTime ScreenTime, live LivePolicy, clk clock.Clock, logger *slog.Logger) *WatchHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &WatchHandler{
		trackers: trackers,
		views:    views,
		gate:     policyGate{screenTime: screenTime, live: live},
		clock:    clk,
		logger:   logger.With("component", "api"),
	}
}

// StartWatch is called when a video is presented. A locked screen refuses
// playback with 423, and a run of shorts over the ceiling answers 409 with
// a redirect home. Otherwise tracking starts.
// POST /v1/watch
func (h *WatchHandler) StartWatch(c *gin.Context) {
	var req struct {
		VideoID string            `json:"videoId" binding:"required"`
		Type    core.VideoVariant `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	if !youtube.IsValidID(req.VideoID) {
		errorJSON(c, http.StatusBadRequest, "Invalid video ID", "INVALID_VIDEO_ID")
		return
	}
	if req.Type == "" {
		req.Type = core.VariantVideo
	}
	if err := req.Type.Validate(); err != nil {
		validationError(c, err)
		return
	}

	userID := currentUser(c)
	decision, limits, err := h.gate.decide(c.Request.Context(), userID)
	if err != nil {
		internalError(c, h.logger, "Failed to evaluate screen time", err)
		return
	}
	if decision.Locked() {
		c.JSON(http.StatusLocked, gin.H{
			"error":    decision.Message,
			"code":     "SCREEN_TIME_LOCKED",
			"decision": decision,
		})
		return
	}

	count := h.views.RecordView(middleware.GetViewingSession(c), req.Type, h.clock.Now())
	if ceiling := core.ShortsCeiling(limits); core.ShouldRedirect(count, ceiling) {
		h.logger.Info("Shorts ceiling exceeded",
			"user_id", userID,
			"count", count,
			"ceiling", ceiling)
		c.JSON(http.StatusConflict, gin.H{
			"error":       "Too many shorts in a row",
			"code":        "SHORTS_LIMIT_REACHED",
			"redirect":    HomePath,
			"shortsCount": count,
			"ceiling":     ceiling,
		})
		return
	}

	t := h.trackers.Start(userID, req.VideoID, req.Type)
	c.JSON(http.StatusCreated, gin.H{
		"watchId":     t.ID(),
		"shortsCount": count,
		"decision":    decision,
		"watch":       t.Snapshot(),
	})
}

// UpdateWatch reports playback state or just keeps the tracker alive
// POST /v1/watch/:id/state
func (h *WatchHandler) UpdateWatch(c *gin.Context) {
	var req struct {
		Playing *bool `json:"playing"`
		Visible *bool `json:"visible"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c, err)
			return
		}
	}

	snapshot, err := h.trackers.Update(c.Request.Context(), c.Param("id"), currentUser(c), req.Playing, req.Visible)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "Watch not found", "WATCH_NOT_FOUND")
			return
		}
		// the state change is applied; the flush is retried on the next tick
		h.logger.Warn("Watch flush failed", "watch_id", c.Param("id"), "error", err)
	}
	c.JSON(http.StatusOK, snapshot)
}

// StopWatch ends tracking with a final flush
// POST /v1/watch/:id/stop
func (h *WatchHandler) StopWatch(c *gin.Context) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c, err)
			return
		}
	}

	snapshot, err := h.trackers.Stop(c.Request.Context(), c.Param("id"), currentUser(c), req.Completed)
	if err != nil {
		if errors.Is(err, tracker.ErrNotFound) {
			errorJSON(c, http.StatusNotFound, "Watch not found", "WATCH_NOT_FOUND")
			return
		}
		internalError(c, h.logger, "Failed to record watch", err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
