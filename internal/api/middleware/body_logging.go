package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const redacted = "***REDACTED***"

var sensitiveFields = map[string]bool{
	"password":       true,
	"parentPassword": true,
	"idToken":        true,
	"token":          true,
}

// responseBodyWriter captures the response body while writing it through
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// BodyLogging logs request and response bodies of API calls at Debug level.
// Credentials are redacted. It does nothing unless Debug is enabled.
func BodyLogging(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "api")
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/v1/") || !logger.Enabled(c.Request.Context(), slog.LevelDebug) {
			c.Next()
			return
		}

		start := time.Now()

		var requestBody any
		if c.Request.Body != nil && c.Request.ContentLength > 0 {
			if data, err := io.ReadAll(c.Request.Body); err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(data))
				requestBody = decodeBody(data)
			}
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = w

		c.Next()

		attrs := []slog.Attr{
			slog.String("request_id", c.GetString(RequestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("duration", time.Since(start).String()),
		}
		if userID := c.GetString(UserIDKey); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if requestBody != nil {
			attrs = append(attrs, slog.Any("request_body", sanitize(requestBody)))
		}
		if w.body.Len() > 0 {
			attrs = append(attrs, slog.Any("response_body", sanitize(decodeBody(w.body.Bytes()))))
		}

		logger.LogAttrs(c.Request.Context(), slog.LevelDebug, "API exchange", attrs...)
	}
}

func decodeBody(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

// sanitize replaces sensitive top-level fields of a JSON object
func sanitize(data any) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}
	clean := make(map[string]any, len(m))
	for k, v := range m {
		if sensitiveFields[k] {
			clean[k] = redacted
		} else {
			clean[k] = v
		}
	}
	return clean
}
