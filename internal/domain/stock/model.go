// Package stock provides batch-level inventory tracking with
// first-expiry-first-out deduction.
package stock

import (
	"time"

	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
)

// RecordType defines movement direction in the ledger.
type RecordType string

const (
	// RecordTypeReceipt increases stock
	RecordTypeReceipt RecordType = "receipt"
	// RecordTypeExpense decreases stock
	RecordTypeExpense RecordType = "expense"
)

// MovementType is the business reason for a stock movement.
type MovementType string

const (
	MovementSale        MovementType = "sale"
	MovementPurchase    MovementType = "purchase"
	MovementAdjustment  MovementType = "adjustment"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
	MovementReturn      MovementType = "return"
	MovementDamage      MovementType = "damage"
	MovementExpiry      MovementType = "expiry"
)

// outbound types consume batches, inbound types create or refill them.
// Adjustment goes both ways and is valid in either set.
var (
	outboundTypes = map[MovementType]bool{
		MovementSale:        true,
		MovementTransferOut: true,
		MovementDamage:      true,
		MovementExpiry:      true,
		MovementAdjustment:  true,
	}
	inboundTypes = map[MovementType]bool{
		MovementPurchase:   true,
		MovementTransferIn: true,
		MovementReturn:     true,
		MovementAdjustment: true,
	}
)

// IsOutbound reports whether the type may consume stock.
func (t MovementType) IsOutbound() bool { return outboundTypes[t] }

// IsInbound reports whether the type may add stock.
func (t MovementType) IsInbound() bool { return inboundTypes[t] }

// Valid reports whether the type is known.
func (t MovementType) Valid() bool { return outboundTypes[t] || inboundTypes[t] }

// Batch is a physical lot of a product at an outlet. Batches are never
// deleted; consumed batches stay at zero quantity so the movement ledger
// keeps valid references.
type Batch struct {
	ID          id.ID          `db:"id" json:"id"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	OutletID    id.ID          `db:"outlet_id" json:"outletId"`
	BatchNumber string         `db:"batch_number" json:"batchNumber"`
	ExpiryDate  time.Time      `db:"expiry_date" json:"expiryDate"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	CostPrice   *types.Money   `db:"cost_price" json:"costPrice,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// Sellable reports whether the batch can be sold as of the given business
// date. A batch expiring today is already unsellable.
func (b *Batch) Sellable(today time.Time) bool {
	return b.Quantity > 0 && b.ExpiryDate.After(today)
}

// StockMovement is an append-only ledger entry. Quantity is always a
// positive magnitude; RecordType carries the direction.
type StockMovement struct {
	ID         id.ID          `db:"id" json:"id"`
	ProductID  id.ID          `db:"product_id" json:"productId"`
	OutletID   id.ID          `db:"outlet_id" json:"outletId"`
	BatchID    id.ID          `db:"batch_id" json:"batchId"`
	RecordType RecordType     `db:"record_type" json:"recordType"`
	Type       MovementType   `db:"movement_type" json:"type"`
	Quantity   types.Quantity `db:"quantity" json:"quantity"`
	Reference  string         `db:"reference" json:"reference,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
	CreatedBy  string         `db:"created_by" json:"createdBy,omitempty"`
}

// SignedQuantity returns quantity with sign based on record type.
func (m *StockMovement) SignedQuantity() types.Quantity {
	if m.RecordType == RecordTypeExpense {
		return -m.Quantity
	}
	return m.Quantity
}

// LocationStock is the cached sellable quantity per product and outlet.
// It is derived from batches and resynced after every write; reads that
// tolerate slight staleness (product lists, dashboards) use it instead of
// summing batches.
type LocationStock struct {
	ProductID id.ID          `db:"product_id" json:"productId"`
	OutletID  id.ID          `db:"outlet_id" json:"outletId"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
}

// BatchDeduction records how much a deduction took from one batch.
type BatchDeduction struct {
	BatchID     id.ID          `json:"batchId"`
	BatchNumber string         `json:"batchNumber"`
	Quantity    types.Quantity `json:"quantity"`
	Remaining   types.Quantity `json:"remaining"`
}

// DeductInput describes a stock deduction request.
type DeductInput struct {
	ProductID id.ID
	OutletID  id.ID
	Quantity  types.Quantity
	Type      MovementType // defaults to MovementSale
	Reference string
}

// AddInput describes a stock receipt into a batch.
type AddInput struct {
	ProductID   id.ID
	OutletID    id.ID
	BatchNumber string
	ExpiryDate  time.Time
	Quantity    types.Quantity
	CostPrice   *types.Money
	Type        MovementType // defaults to MovementPurchase
	Reference   string
}

// AdjustInput sets the absolute sellable quantity for a product at an outlet.
type AdjustInput struct {
	ProductID   id.ID
	OutletID    id.ID
	NewQuantity types.Quantity
	Reason      string
}

// SweepFilter narrows an expiry sweep to one outlet and/or product.
// Zero values mean no restriction.
type SweepFilter struct {
	OutletID  *id.ID
	ProductID *id.ID
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	OutletID   *id.ID
	RecordType *RecordType
	Type       *MovementType
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}

// TurnoverFilter for turnover reports.
type TurnoverFilter struct {
	OutletID  *id.ID
	ProductID *id.ID
	FromDate  time.Time
	ToDate    time.Time
}

// Turnover represents receipt/expense totals for a period.
type Turnover struct {
	OutletID       id.ID          `json:"outletId,omitempty"`
	ProductID      id.ID          `json:"productId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}
