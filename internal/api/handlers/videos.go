package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"choicetube/internal/core"
)

// VideoLists manages a user's curated list
type VideoLists interface {
	List(ctx context.Context, userID string, variant core.VideoVariant) ([]*core.VideoItem, error)
	Add(ctx context.Context, userID, text string, variant core.VideoVariant) (*core.VideoItem, error)
	AddShared(ctx context.Context, userID, title, text, url string) (*core.VideoItem, error)
}

// VideosHandler handles the curated video list
type VideosHandler struct {
	videos VideoLists
	logger *slog.Logger
}

// NewVideosHandler creates a new videos handler
func NewVideosHandler(videos VideoLists, logger *slog.Logger) *VideosHandler {
	return &VideosHandler{
		videos: videos,
		logger: logger.With("component", "api"),
	}
}

// ListVideos returns the user's list in order, optionally one type only
// GET /v1/videos?type=video|shorts
func (h *VideosHandler) ListVideos(c *gin.Context) {
	variant := core.VideoVariant(c.Query("type"))
	if variant != "" {
		if err := variant.Validate(); err != nil {
			validationError(c, err)
			return
		}
	}

	videos, err := h.videos.List(c.Request.Context(), currentUser(c), variant)
	if err != nil {
		internalError(c, h.logger, "Failed to retrieve videos", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// AddVideo appends a video given a link, an embed code or a bare ID
// POST /v1/videos
func (h *VideosHandler) AddVideo(c *gin.Context) {
	var req struct {
		URL  string            `json:"url" binding:"required"`
		Type core.VideoVariant `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	item, err := h.videos.Add(c.Request.Context(), currentUser(c), req.URL, req.Type)
	if err != nil {
		if !validationError(c, err) {
			internalError(c, h.logger, "Failed to add video", err)
		}
		return
	}
	c.JSON(http.StatusCreated, item)
}

// ShareVideo handles content shared from another app
// POST /v1/videos/share
func (h *VideosHandler) ShareVideo(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
		Text  string `json:"text"`
		URL   string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Title+req.Text+req.URL) == "" {
		errorJSON(c, http.StatusBadRequest, "Nothing was shared", "INVALID_REQUEST")
		return
	}

	item, err := h.videos.AddShared(c.Request.Context(), currentUser(c), req.Title, req.Text, req.URL)
	if err != nil {
		if !validationError(c, err) {
			internalError(c, h.logger, "Failed to add shared video", err)
		}
		return
	}
	c.JSON(http.StatusCreated, item)
}
