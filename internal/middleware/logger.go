package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/card-notifier/pkg/logger"
)

// Logger logs one line per request once the handler chain has finished.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", c.GetString(ContextRequestID),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}

		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last
			}
			log.Error(err, "Server error", fields...)
		case status >= 400:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}
