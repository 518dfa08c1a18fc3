package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	startedAt time.Time
	active    func() int
}

// NewHealthHandler creates a new health handler. active reports the number
// of tracked playbacks and may be nil.
func NewHealthHandler(active func() int) *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), active: active}
}

// GetHealth returns the health status of the service
// GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	body := gin.H{
		"status":  "UP",
		"service": "choicetube",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.active != nil {
		body["activeWatches"] = h.active()
	}
	c.JSON(http.StatusOK, body)
}
