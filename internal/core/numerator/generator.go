// Package numerator provides domain contracts for document auto-numbering.
// Implementations live in the infrastructure layer.
package numerator

import (
	"context"
	"time"
)

// Generator generates sequential document numbers.
//
// In Database-per-Tenant architecture, implementations obtain database
// connections from context (tenant.GetPool / tenant.GetTxManager), so one
// Generator instance serves all tenants.
type Generator interface {
	// GetNextNumber generates the next document number.
	// Pattern: PREFIX-YEAR-XXXXX (e.g., SALE-2026-00001)
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber sets the next number value (for data migration).
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
