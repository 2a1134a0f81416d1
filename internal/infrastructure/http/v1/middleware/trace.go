package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "tillpoint/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Gin context keys mirroring the trace identifiers, for middleware that
// only has the gin context at hand.
const (
	CtxRequestID = "request_id"
	CtxTraceID   = "trace_id"
)

// Trace assigns every request a request ID and a trace ID, honoring the
// ones a gateway already stamped on the headers. Both are echoed back on
// the response so a terminal can quote them in a support ticket.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := headerOrNewID(c, HeaderRequestID)
		traceID := headerOrNewID(c, HeaderTraceID)

		trace := &appctx.TraceContext{
			TraceID:   traceID,
			RequestID: requestID,
		}
		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), trace))

		c.Set(CtxTraceID, traceID)
		c.Set(CtxRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}

func headerOrNewID(c *gin.Context, header string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	return uuid.New().String()
}
