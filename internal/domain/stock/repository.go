package stock

import (
	"context"
	"time"

	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
)

// Repository defines storage operations for batches, the movement ledger
// and the cached location stock. Write methods must run inside a
// transaction started by the caller.
type Repository interface {
	// Batch operations

	// SellableBatches returns batches with quantity > 0 and expiry after
	// the given business date, ordered expiry then created_at ascending.
	SellableBatches(ctx context.Context, productID, outletID id.ID, today time.Time) ([]Batch, error)

	// SellableBatchesForUpdate is SellableBatches with row locks, used by
	// deductions. Lock order is the FIFO order, so concurrent deductions
	// for the same product queue rather than deadlock.
	SellableBatchesForUpdate(ctx context.Context, productID, outletID id.ID, today time.Time) ([]Batch, error)

	// UpsertBatchAdd inserts a batch or, when a batch with the same
	// product, outlet and batch number exists, adds to its quantity.
	// Returns the resulting row.
	UpsertBatchAdd(ctx context.Context, b *Batch) (*Batch, error)

	// ApplyDeductions decrements batch quantities. Callers must hold row
	// locks on all affected batches.
	ApplyDeductions(ctx context.Context, deductions []BatchDeduction) error

	// ZeroBatch sets a batch quantity to zero (expiry write-off).
	ZeroBatch(ctx context.Context, batchID id.ID) error

	// ExpiredBatchesForUpdate returns locked batches with quantity > 0
	// whose expiry date is on or before the given business date.
	ExpiredBatchesForUpdate(ctx context.Context, today time.Time, filter SweepFilter) ([]Batch, error)

	// ExpiringBatches returns sellable batches expiring within (today, until].
	ExpiringBatches(ctx context.Context, today, until time.Time, filter SweepFilter) ([]Batch, error)

	// GetBatch retrieves one batch by ID.
	GetBatch(ctx context.Context, batchID id.ID) (*Batch, error)

	// Movement ledger

	// CreateMovements batch-inserts ledger entries.
	CreateMovements(ctx context.Context, movements []StockMovement) error

	// GetMovementHistory returns ledger entries for a product, newest first.
	GetMovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error)

	// GetTurnover calculates receipt and expense totals for a period.
	GetTurnover(ctx context.Context, filter TurnoverFilter) (Turnover, error)

	// Location stock

	// GetLocationStock returns the cached quantity for product+outlet.
	GetLocationStock(ctx context.Context, productID, outletID id.ID) (LocationStock, error)

	// ListLocationStock returns cached quantities for an outlet.
	ListLocationStock(ctx context.Context, outletID id.ID, excludeZero bool) ([]LocationStock, error)

	// ResyncLocationStock recomputes the cache for product+outlet from
	// sellable batches and returns the new quantity. Idempotent.
	ResyncLocationStock(ctx context.Context, productID, outletID id.ID, today time.Time) (types.Quantity, error)

	// Lookups

	// ProductName resolves a product display name for error messages.
	ProductName(ctx context.Context, productID id.ID) (string, error)
}
