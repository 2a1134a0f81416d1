package stocktake

import (
	"context"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
)

// StockTake is a physical count at one outlet. Completing it forces the
// sellable quantity of each counted product to the counted value; the
// adjustment deltas land in the movement ledger.
type StockTake struct {
	entity.Document

	CountedBy string `db:"counted_by" json:"countedBy"`

	Lines []CountLine `db:"-" json:"lines,omitempty"`
}

// CountLine is one counted product. ExpectedQty is the cached quantity
// at the moment the line was added, kept for the variance report.
type CountLine struct {
	LineID      id.ID          `db:"line_id" json:"lineId"`
	LineNo      int            `db:"line_no" json:"lineNo"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	ExpectedQty types.Quantity `db:"expected_qty" json:"expectedQty"`
	CountedQty  types.Quantity `db:"counted_qty" json:"countedQty"`
}

// Variance is the count delta; negative means shrinkage.
func (l CountLine) Variance() types.Quantity {
	return l.CountedQty - l.ExpectedQty
}

// New creates a draft stock take for an outlet.
func New(outletID id.ID, countedBy string) *StockTake {
	return &StockTake{
		Document:  entity.NewDocument(outletID),
		CountedBy: countedBy,
	}
}

// AddLine records a counted product. Counting the same product twice
// replaces the earlier count.
func (st *StockTake) AddLine(productID id.ID, expectedQty, countedQty types.Quantity) {
	for i := range st.Lines {
		if st.Lines[i].ProductID == productID {
			st.Lines[i].ExpectedQty = expectedQty
			st.Lines[i].CountedQty = countedQty
			return
		}
	}
	st.Lines = append(st.Lines, CountLine{
		LineID:      id.New(),
		LineNo:      len(st.Lines) + 1,
		ProductID:   productID,
		ExpectedQty: expectedQty,
		CountedQty:  countedQty,
	})
}

// Validate checks business rules.
func (st *StockTake) Validate(ctx context.Context) error {
	if err := st.Document.Validate(ctx); err != nil {
		return err
	}

	if len(st.Lines) == 0 {
		return apperror.NewValidation("stock take must have at least one counted line").WithDetail("field", "lines")
	}

	for i, line := range st.Lines {
		if id.IsZero(line.ProductID) {
			return apperror.NewValidation("line product is required").WithDetail("line", i+1)
		}
		if line.CountedQty < 0 {
			return apperror.NewValidation("counted quantity cannot be negative").WithDetail("line", i+1)
		}
	}

	return nil
}

// ListFilter for querying stock takes.
type ListFilter struct {
	domain.ListFilter

	OutletID *id.ID
	Status   *entity.DocStatus
	DateFrom *time.Time
	DateTo   *time.Time
}
