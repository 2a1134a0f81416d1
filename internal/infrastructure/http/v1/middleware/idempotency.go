package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/infrastructure/storage/postgres"
)

// HeaderIdempotencyKey carries the client-chosen idempotency key.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// HeaderIdempotencyReplay marks a response served from a stored key.
const HeaderIdempotencyReplay = "X-Idempotency-Replay"

// Gin context keys under which the middleware hands the acquired key and
// its store to the error middleware and the handlers.
const (
	CtxIdempotencyKey   = "idempotency_key"
	CtxIdempotencyStore = "idempotency_store"
)

const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

// financialSuffixes are the operations that finalize money or stock: a
// duplicate here double-charges a customer or double-deducts a batch, so
// a key is mandatory and kept for the extended retention window.
var financialSuffixes = []string{"/checkout", "/close", "/receive", "/complete"}

func isFinancialRoute(route string) bool {
	for _, suffix := range financialSuffixes {
		if strings.HasSuffix(route, suffix) {
			return true
		}
	}
	return false
}

// Idempotency deduplicates retried mutations. Reads pass through; writes
// without a key pass through unless the route is financial, where the key
// is required. A replayed request gets the stored response verbatim.
func Idempotency(store *postgres.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		route := c.FullPath()
		financial := isFinancialRoute(route)

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			if financial {
				_ = c.Error(apperror.NewValidation(HeaderIdempotencyKey+" header is required for this operation").
					WithDetail("route", route))
				c.Abort()
				return
			}
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			_ = c.Error(apperror.NewValidation("failed to read request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := sha256.Sum256(body)
		claim := postgres.IdempotencyClaim{
			Key:         key,
			UserID:      appctx.GetUserID(c.Request.Context()),
			Operation:   c.Request.Method + " " + route,
			Fingerprint: hex.EncodeToString(fingerprint[:]),
			Financial:   financial,
		}

		replay, err := store.AcquireKey(c.Request.Context(), claim)
		if err != nil {
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if replay != nil {
			c.Header(HeaderIdempotencyReplay, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(CtxIdempotencyKey, key)
		c.Set(CtxIdempotencyStore, store)

		c.Next()
	}
}
