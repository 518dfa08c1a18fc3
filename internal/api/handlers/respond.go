package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"choicetube/internal/api/middleware"
	"choicetube/internal/core"
)

// validationCodes maps domain validation errors to client error codes
var validationCodes = []struct {
	err  error
	code string
}{
	{core.ErrInvalidVideoURL, "INVALID_VIDEO_URL"},
	{core.ErrInvalidVariant, "INVALID_VIDEO_TYPE"},
	{core.ErrInvalidSchedule, "INVALID_SCHEDULE"},
	{core.ErrInvalidDailyLimit, "INVALID_DAILY_LIMIT"},
	{core.ErrInvalidShortsLimit, "INVALID_SHORTS_LIMIT"},
	{core.ErrInvalidCoordinates, "INVALID_COORDINATES"},
	{core.ErrInvalidMethod, "INVALID_METHOD"},
	{core.ErrInvalidSchool, "INVALID_SCHOOL"},
}

func errorJSON(c *gin.Context, status int, message, code string) {
	c.JSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"code":    "INVALID_REQUEST",
		"details": err.Error(),
	})
}

// validationError writes a 400 for domain validation errors and reports
// whether it did
func validationError(c *gin.Context, err error) bool {
	for _, v := range validationCodes {
		if errors.Is(err, v.err) {
			errorJSON(c, http.StatusBadRequest, err.Error(), v.code)
			return true
		}
	}
	return false
}

func internalError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	logger.Error(msg,
		"request_id", c.GetString(middleware.RequestIDKey),
		"user_id", c.GetString(middleware.UserIDKey),
		"error", err,
	)
	_ = c.Error(err)
	errorJSON(c, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
}

// currentUser returns the authenticated user; the route is always behind UserAuth
func currentUser(c *gin.Context) string {
	userID, _ := middleware.GetUserID(c)
	return userID
}
