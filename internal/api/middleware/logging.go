package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger replaces the default GIN logger with structured zap logging.
// Health and metrics probes log at debug so scrapers do not flood the
// request log; server errors log at error level.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("ip", c.ClientIP()),
			zap.Int("size", c.Writer.Size()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case path == "/health" || path == "/metrics":
			logger.Debug("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}
