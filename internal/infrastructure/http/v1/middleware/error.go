package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/infrastructure/storage/postgres"
	"tillpoint/pkg/logger"
)

// ErrorHandler turns errors registered on the gin context into the JSON
// error envelope. It is the single place that writes error responses, so
// handlers only ever call c.Error and abort.
//
// Severity follows the error code: a closed tab or an out-of-stock
// product is the till working as intended and logs as a business
// outcome, not as a server failure.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// A handler that already wrote a response keeps it.
		if c.Writer.Written() {
			return
		}

		appErr, ok := apperror.AsAppError(err)
		if !ok {
			logger.Error(c.Request.Context(), "unhandled error", "error", err)
			appErr = apperror.NewInternal(err)
		}

		logAppError(c, appErr)

		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
		if appErr.Code == apperror.CodeInternal {
			// Internal details stay in the logs; the client gets the
			// request ID to quote to support.
			body["message"] = "Internal server error"
			body["details"] = map[string]any{"request_id": c.GetString(CtxRequestID)}
		}

		recordFailure(c, appErr.HTTPStatus, body)
		c.JSON(appErr.HTTPStatus, body)
	}
}

// logAppError picks the log level by what the error means at the till.
func logAppError(c *gin.Context, appErr *apperror.AppError) {
	ctx := c.Request.Context()
	fields := []any{
		"code", appErr.Code,
		"route", c.FullPath(),
	}
	if appErr.Err != nil {
		fields = append(fields, "cause", appErr.Err)
	}

	switch appErr.Code {
	case apperror.CodeInsufficientStock, apperror.CodeTabClosed,
		apperror.CodeDocumentFinalized, apperror.CodeBusinessRule:
		// Normal POS outcomes: the domain said no.
		logger.Info(ctx, "request rejected by business rule", fields...)
	case apperror.CodeValidation, apperror.CodeInvalidInput, apperror.CodeNotFound:
		logger.Debug(ctx, "request rejected", fields...)
	case apperror.CodeUnauthorized, apperror.CodeForbidden,
		apperror.CodeConflict, apperror.CodeConcurrentModification:
		logger.Warn(ctx, "request denied", fields...)
	default:
		logger.Error(ctx, "request failed", fields...)
	}
}

// recordFailure stores the error response against the request's
// idempotency key, if one was acquired, so a retry replays this exact
// failure. Best-effort: a storage error must not mask the response.
func recordFailure(c *gin.Context, status int, body any) {
	key, ok := c.Get(CtxIdempotencyKey)
	if !ok {
		return
	}
	store, ok := c.Get(CtxIdempotencyStore)
	if !ok {
		return
	}
	s, ok := store.(*postgres.IdempotencyStore)
	if !ok || s == nil {
		return
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}
	_ = s.FailKey(c.Request.Context(), key.(string), status, "application/json", body)
}
