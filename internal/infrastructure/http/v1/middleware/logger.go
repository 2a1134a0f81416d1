package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/pkg/logger"
)

// Logger writes one access log line per request, tagged via WithContext
// with the trace, tenant and user once auth has resolved them. Health
// probes are skipped: a load balancer polling /health/live every few
// seconds is not traffic worth keeping.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/health/") {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if query != "" {
			fields = append(fields, "query", query)
		}
		if route := c.FullPath(); route != "" && route != path {
			fields = append(fields, "route", route)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "errors", errs)
		}

		entry := log.WithContext(ctx)
		switch {
		case status >= 500:
			entry.Errorw("http request", fields...)
		case status >= 400:
			entry.Warnw("http request", fields...)
		default:
			entry.Infow("http request", fields...)
		}
	}
}
