package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"choicetube/internal/idgen"
)

const (
	// ViewingSessionKey is the context key of the browsing-session ID
	ViewingSessionKey = "viewing_session"
	// ViewingCookie identifies a browsing session for the shorts counter
	ViewingCookie = "viewing_session"
)

// ViewingSession makes sure every request carries a browsing-session ID.
// The cookie has no max-age, so it ends with the browser session.
func ViewingSession(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(ViewingCookie)
		if err != nil || id == "" {
			id = idgen.NewViewing()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(ViewingCookie, id, 0, "/", "", secure, true)
		}
		c.Set(ViewingSessionKey, id)
		c.Next()
	}
}

// GetViewingSession returns the browsing-session ID
func GetViewingSession(c *gin.Context) string {
	return c.GetString(ViewingSessionKey)
}
