package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var scannerPrefixes = []string{
	"/admin",
	"/phpmyadmin",
	"/wp-admin",
	"/wp-login",
	"/.env",
	"/.git",
	"/.aws",
	"/backup",
	"/cgi-bin",
	"/console",
	"/actuator",
	"/manager",
	"/robots.txt",
	"/favicon.ico",
	"/sitemap.xml",
}

var scannerSuffixes = []string{".php", ".asp", ".aspx", ".jsp", ".bak", ".old", ".sql", ".zip", ".tar", ".gz"}

// NoiseFilter keeps scanner probes out of the access log. It must be
// registered after Logging so that it runs first on the way out.
func NoiseFilter(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "api")
	return func(c *gin.Context) {
		c.Next()

		// authenticated traffic is always logged
		if c.GetString(UserIDKey) != "" {
			return
		}

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if status == http.StatusMethodNotAllowed || (status >= http.StatusBadRequest && IsScannerPath(path)) {
			c.Set(SkipLoggingKey, true)
			logger.Debug("Scanner request filtered",
				"path", path,
				"method", c.Request.Method,
				"status", status,
				"client_ip", c.ClientIP())
		}
	}
}

// IsScannerPath reports whether path looks like a vulnerability probe
func IsScannerPath(path string) bool {
	lower := strings.ToLower(path)
	for _, prefix := range scannerPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, ext := range scannerSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
