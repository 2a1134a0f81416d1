// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/pkg/logger"
)

// Recovery converts a handler panic into a 500 response. The stack trace
// goes to the log together with what the request was doing; the client
// only ever sees the generic internal error envelope.
//
// Recovery sits outside ErrorHandler in the chain, so by the time the
// panic is caught the error middleware has already unwound. The response
// is written here directly.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"panic", r,
					"method", c.Request.Method,
					"route", c.FullPath(),
					"stack", string(debug.Stack()),
				)

				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"code":    apperror.CodeInternal,
						"message": "Internal server error",
						"details": map[string]any{"request_id": c.GetString(CtxRequestID)},
					})
				} else {
					c.Abort()
				}
			}
		}()
		c.Next()
	}
}
