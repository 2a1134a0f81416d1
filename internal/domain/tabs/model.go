// Package tabs provides bar tabs: open orders that accumulate items
// and settle as a sale when closed. Stock is deducted at close, not as
// items are added.
package tabs

import (
	"context"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
)

// Tab represents an open order. Lifecycle maps onto document status:
// draft = open, completed = settled, voided = cancelled.
type Tab struct {
	entity.Document

	// Name identifies the tab at the bar ("table 4", a customer name)
	Name string `db:"name" json:"name"`

	// OpenedBy is the user who opened the tab
	OpenedBy string `db:"opened_by" json:"openedBy"`

	// SaleID links to the sale that settled this tab
	SaleID *id.ID `db:"sale_id" json:"saleId,omitempty"`

	// Totals (calculated from lines)
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalAmount   types.Money    `db:"total_amount" json:"totalAmount"`

	// Table part: ordered items
	Lines []TabLine `db:"-" json:"lines"`
}

// TabLine represents one ordered item. Repeat orders of the same
// product merge into one line.
type TabLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID id.ID `db:"product_id" json:"productId"`

	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	Amount    types.Money    `db:"amount" json:"amount"`
}

// New opens a tab at an outlet.
func New(outletID id.ID, name, openedBy string) *Tab {
	return &Tab{
		Document:    entity.NewDocument(outletID),
		Name:        name,
		OpenedBy:    openedBy,
		TotalAmount: types.ZeroMoney(),
		Lines:       make([]TabLine, 0),
	}
}

// IsOpen reports whether items can still be added.
func (t *Tab) IsOpen() bool {
	return t.Status == entity.StatusDraft
}

// AddItem merges an item into the tab. Adding the same product again
// increases the existing line; the latest unit price wins.
func (t *Tab) AddItem(productID id.ID, quantity types.Quantity, unitPrice types.Money) {
	for i := range t.Lines {
		if t.Lines[i].ProductID == productID {
			t.Lines[i].Quantity += quantity
			t.Lines[i].UnitPrice = unitPrice
			t.Lines[i].Amount = types.MulMoney(t.Lines[i].Quantity, unitPrice)
			t.recalculateTotals()
			return
		}
	}

	t.Lines = append(t.Lines, TabLine{
		LineID:    id.New(),
		LineNo:    len(t.Lines) + 1,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Amount:    types.MulMoney(quantity, unitPrice),
	})
	t.recalculateTotals()
}

func (t *Tab) recalculateTotals() {
	t.TotalQuantity = 0
	t.TotalAmount = types.ZeroMoney()

	for _, line := range t.Lines {
		t.TotalQuantity += line.Quantity
		t.TotalAmount = t.TotalAmount.Add(line.Amount)
	}
}

// Validate implements entity.Validatable.
func (t *Tab) Validate(ctx context.Context) error {
	if err := t.Document.Validate(ctx); err != nil {
		return err
	}

	if t.Name == "" {
		return apperror.NewValidation("tab name is required").
			WithDetail("field", "name")
	}

	for i, line := range t.Lines {
		if id.IsZero(line.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Quantity <= 0 {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}

// Item is one requested product when adding to a tab.
type Item struct {
	ProductID id.ID
	Quantity  types.Quantity
	UnitPrice types.Money
}

// ListFilter for filtering tabs.
type ListFilter struct {
	domain.ListFilter

	OutletID *id.ID
	Status   *entity.DocStatus
	OpenedBy *string
	DateFrom *time.Time
	DateTo   *time.Time
}
