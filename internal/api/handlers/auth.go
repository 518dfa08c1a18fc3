package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"choicetube/internal/api/middleware"
	"choicetube/internal/auth"
)

// ListSeeder creates a new user's default video list
type ListSeeder interface {
	SeedDefaults(ctx context.Context, userID string) error
}

// AuthHandler exchanges sign-in tokens for session cookies
type AuthHandler struct {
	verifier auth.Verifier
	lists    ListSeeder
	ttl      time.Duration
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(verifier auth.Verifier, lists ListSeeder, ttl time.Duration, secure bool, logger *slog.Logger) *AuthHandler {
	if ttl <= 0 {
		ttl = auth.SessionTTL
	}
	return &AuthHandler{
		verifier: verifier,
		lists:    lists,
		ttl:      ttl,
		secure:   secure,
		logger:   logger.With("component", "api"),
	}
}

// CreateSession verifies an ID token and sets the session cookie.
// First sign-in also seeds the default video list.
// POST /v1/auth/session
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req struct {
		IDToken string `json:"idToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	identity, err := h.verifier.VerifyToken(ctx, req.IDToken)
	if err != nil {
		h.logger.Warn("Sign-in token rejected", "error", err, "client_ip", c.ClientIP())
		errorJSON(c, http.StatusUnauthorized, "Invalid or expired token", "INVALID_TOKEN")
		return
	}

	cookie, err := h.verifier.CreateSession(ctx, req.IDToken, h.ttl)
	if err != nil {
		h.logger.Warn("Session cookie not issued", "user_id", identity.UserID, "error", err)
		errorJSON(c, http.StatusUnauthorized, "Failed to create session", "INVALID_TOKEN")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, cookie, int(h.ttl.Seconds()), "/", "", h.secure, true)

	if err := h.lists.SeedDefaults(ctx, identity.UserID); err != nil {
		// the list falls back to defaults on read
		h.logger.Warn("Failed to seed default list", "user_id", identity.UserID, "error", err)
	}

	h.logger.Info("Session created", "user_id", identity.UserID)
	c.JSON(http.StatusOK, gin.H{
		"uid":       identity.UserID,
		"email":     identity.Email,
		"expiresAt": time.Now().Add(h.ttl).UTC(),
	})
}

// DeleteSession clears the session cookie
// DELETE /v1/auth/session
func (h *AuthHandler) DeleteSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secure, true)
	c.Status(http.StatusNoContent)
}
