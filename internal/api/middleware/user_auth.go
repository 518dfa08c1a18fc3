package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"choicetube/internal/auth"
)

const (
	// UserIDKey is the context key of the authenticated user ID
	UserIDKey = "user_id"
	// SessionCookie holds the session issued by the auth exchange
	SessionCookie = "session"
)

// UserAuth authenticates the request from the session cookie or, failing
// that, an Authorization Bearer token. Unauthenticated requests get a 401
// pointing at loginURL.
func UserAuth(verifier auth.Verifier, loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			identity *auth.Identity
			err      = auth.ErrUnauthenticated
		)

		if cookie, cerr := c.Cookie(SessionCookie); cerr == nil && cookie != "" {
			identity, err = verifier.VerifySession(c.Request.Context(), cookie)
		} else if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			identity, err = verifier.VerifyToken(c.Request.Context(), token)
		}

		if err != nil || identity == nil || identity.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authentication required",
				"code":      "LOGIN_REQUIRED",
				"login_url": loginURL,
			})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID
func GetUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(UserIDKey)
	return userID, userID != ""
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
