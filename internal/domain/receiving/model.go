package receiving

import (
	"context"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
)

// Delivery is a supplier delivery document. Completing it creates one
// stock batch per line, so batch numbers and expiry dates are captured
// here at the door, not reconstructed later.
type Delivery struct {
	entity.Document

	SupplierID    id.ID          `db:"supplier_id" json:"supplierId"`
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalCost     types.Money    `db:"total_cost" json:"totalCost"`

	Lines []DeliveryLine `db:"-" json:"lines,omitempty"`
}

// DeliveryLine is one received batch of one product.
type DeliveryLine struct {
	LineID      id.ID          `db:"line_id" json:"lineId"`
	LineNo      int            `db:"line_no" json:"lineNo"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	BatchNumber string         `db:"batch_number" json:"batchNumber"`
	ExpiryDate  time.Time      `db:"expiry_date" json:"expiryDate"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitCost    types.Money    `db:"unit_cost" json:"unitCost"`
}

// New creates a draft delivery from a supplier to an outlet.
func New(outletID, supplierID id.ID) *Delivery {
	return &Delivery{
		Document:   entity.NewDocument(outletID),
		SupplierID: supplierID,
	}
}

// AddLine appends a received batch line and recalculates totals.
func (d *Delivery) AddLine(productID id.ID, batchNumber string, expiryDate time.Time, quantity types.Quantity, unitCost types.Money) {
	d.Lines = append(d.Lines, DeliveryLine{
		LineID:      id.New(),
		LineNo:      len(d.Lines) + 1,
		ProductID:   productID,
		BatchNumber: batchNumber,
		ExpiryDate:  expiryDate,
		Quantity:    quantity,
		UnitCost:    unitCost,
	})
	d.recalculateTotals()
}

func (d *Delivery) recalculateTotals() {
	d.TotalQuantity = 0
	d.TotalCost = types.ZeroMoney()
	for _, line := range d.Lines {
		d.TotalQuantity += line.Quantity
		d.TotalCost = d.TotalCost.Add(types.MulMoney(line.Quantity, line.UnitCost))
	}
}

// Validate checks business rules.
func (d *Delivery) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsZero(d.SupplierID) {
		return apperror.NewValidation("supplier is required").WithDetail("field", "supplierId")
	}

	if len(d.Lines) == 0 {
		return apperror.NewValidation("delivery must have at least one line").WithDetail("field", "lines")
	}

	for i, line := range d.Lines {
		if id.IsZero(line.ProductID) {
			return apperror.NewValidation("line product is required").WithDetail("line", i+1)
		}
		if line.BatchNumber == "" {
			return apperror.NewValidation("line batch number is required").WithDetail("line", i+1)
		}
		if line.ExpiryDate.IsZero() {
			return apperror.NewValidation("line expiry date is required").WithDetail("line", i+1)
		}
		if line.Quantity <= 0 {
			return apperror.NewValidation("line quantity must be positive").WithDetail("line", i+1)
		}
		if line.UnitCost.IsNegative() {
			return apperror.NewValidation("line unit cost cannot be negative").WithDetail("line", i+1)
		}
	}

	return nil
}

// ListFilter for querying deliveries.
type ListFilter struct {
	domain.ListFilter

	OutletID   *id.ID
	SupplierID *id.ID
	Status     *entity.DocStatus
	DateFrom   *time.Time
	DateTo     *time.Time
}
