package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tillpoint/internal/core/apperror"
)

// IdempotencyStatus is the lifecycle state of an idempotency key.
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// IdempotencyConfig tunes key retention. Financial operations (checkout,
// tab close, goods receipt) keep their keys longer: a POS terminal that
// lost connectivity mid-sale may retry long after a catalog edit would.
type IdempotencyConfig struct {
	// Retention is how long a finished key replays its response.
	Retention time.Duration

	// FinancialRetention applies to claims marked Financial.
	FinancialRetention time.Duration

	// PendingTimeout is how long an in-flight key blocks a retry before
	// it is presumed crashed and taken over.
	PendingTimeout time.Duration
}

func (c IdempotencyConfig) withDefaults() IdempotencyConfig {
	if c.Retention <= 0 {
		c.Retention = 10 * time.Minute
	}
	if c.FinancialRetention <= 0 {
		c.FinancialRetention = 24 * time.Hour
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = time.Minute
	}
	return c
}

// IdempotencyClaim is what a request stakes on a key: who is asking, for
// which operation, with which request body. A key replays only for the
// exact same claim; anything else is a reuse error.
type IdempotencyClaim struct {
	Key         string
	UserID      string
	Operation   string // e.g. "POST /api/v1/tabs/:id/close"
	Fingerprint string // SHA-256 of the request body
	Financial   bool
}

// IdempotencyRecord is one row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	Fingerprint string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the stored HTTP response, served verbatim on a
// retry so the terminal sees exactly what the first attempt produced.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore persists idempotency keys in the tenant database.
// With a nil txManager the store resolves one from the request context
// per call, so a single instance serves every tenant.
type IdempotencyStore struct {
	txManager *TxManager
	cfg       IdempotencyConfig
}

// NewIdempotencyStore creates an idempotency store.
func NewIdempotencyStore(txManager *TxManager, cfg IdempotencyConfig) *IdempotencyStore {
	return &IdempotencyStore{txManager: txManager, cfg: cfg.withDefaults()}
}

func (s *IdempotencyStore) querier(ctx context.Context) Querier {
	txm := s.txManager
	if txm == nil {
		txm = MustGetTxManager(ctx)
	}
	return txm.GetQuerier(ctx)
}

func (s *IdempotencyStore) retention(claim IdempotencyClaim) time.Duration {
	if claim.Financial {
		return s.cfg.FinancialRetention
	}
	return s.cfg.Retention
}

// AcquireKey stakes a claim on an idempotency key.
// Returns:
//   - (nil, nil): the claim is new, the caller should run the operation
//   - (replay, nil): the operation already ran, serve the stored response
//   - (nil, error): the key is held by an in-flight request, or was
//     reused for a different request
func (s *IdempotencyStore) AcquireKey(ctx context.Context, claim IdempotencyClaim) (*IdempotencyReplay, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.retention(claim))
	q := s.querier(ctx)

	// DO NOTHING keeps a concurrent loser from touching the winner's row.
	// Zero rows inserted means the key already exists.
	tag, err := q.Exec(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, claim.Key, claim.UserID, claim.Operation, IdempotencyPending, claim.Fingerprint, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("stake idempotency claim: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil, nil
	}

	var rec IdempotencyRecord
	err = q.QueryRow(ctx, `
		SELECT idempotency_key, user_id, operation, status, request_hash,
		       response, COALESCE(response_status, 0), COALESCE(response_content_type, ''),
		       created_at, updated_at, expires_at
		FROM sys_idempotency
		WHERE idempotency_key = $1
	`, claim.Key).Scan(
		&rec.Key, &rec.UserID, &rec.Operation, &rec.Status, &rec.Fingerprint,
		&rec.Response, &rec.StatusCode, &rec.ContentType,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}

	// A key binds one user, one operation, one body. A cashier must not
	// be able to replay another cashier's checkout, and a changed body
	// under the same key is a client bug worth surfacing loudly.
	if rec.UserID != claim.UserID || rec.Operation != claim.Operation || rec.Fingerprint != claim.Fingerprint {
		return nil, apperror.NewConflict("idempotency key was already used for a different request").
			WithDetail("key", claim.Key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", claim.Operation)
	}

	switch rec.Status {
	case IdempotencyCompleted, IdempotencyFailed:
		return &IdempotencyReplay{
			StatusCode:  replayStatus(rec.StatusCode),
			ContentType: replayContentType(rec.ContentType),
			Body:        rec.Response,
		}, nil

	case IdempotencyPending:
		cutoff := now.Add(-s.cfg.PendingTimeout)
		if rec.UpdatedAt.Before(cutoff) {
			// The original holder presumably crashed. The guarded update
			// makes sure only one retry takes the key over.
			tag, err := q.Exec(ctx, `
				UPDATE sys_idempotency
				SET updated_at = $1, expires_at = GREATEST(expires_at, $2)
				WHERE idempotency_key = $3 AND status = $4 AND updated_at < $5
			`, now, expiresAt, claim.Key, IdempotencyPending, cutoff)
			if err != nil {
				return nil, fmt.Errorf("take over stale key: %w", err)
			}
			if tag.RowsAffected() == 1 {
				return nil, nil
			}
		}
		return nil, apperror.NewConflict("a request with this idempotency key is still being processed").
			WithDetail("key", claim.Key).
			WithDetail("retry_after_seconds", int(s.cfg.PendingTimeout.Seconds()))

	default:
		return nil, fmt.Errorf("idempotency key %s has unknown status %q", claim.Key, rec.Status)
	}
}

// CompleteKey stores the successful response against the key.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finishKey(ctx, key, IdempotencyCompleted, statusCode, contentType, response)
}

// FailKey stores the error response against the key. A retry replays the
// failure rather than re-running the operation: the client sent the same
// request and gets the same answer.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finishKey(ctx, key, IdempotencyFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finishKey(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			if status == IdempotencyCompleted {
				return fmt.Errorf("marshal idempotency response: %w", err)
			}
			// Keep the failed key consistent even with an unmarshalable body.
			b, _ = json.Marshal(map[string]string{"error": err.Error()})
		}
		body = b
	}

	_, err := s.querier(ctx).Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $1, response = $2, response_status = $3, response_content_type = $4, updated_at = $5
		WHERE idempotency_key = $6
	`, status, body, statusCode, contentType, time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes keys past their retention window.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.querier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func replayStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

func replayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}
