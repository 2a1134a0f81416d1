// Package sales provides the Sale document: a till checkout that
// deducts stock and records payment.
package sales

import (
	"context"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
)

// PaymentMethod is how the sale was settled.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	// PaymentTab marks sales produced by closing a bar tab
	PaymentTab PaymentMethod = "tab"
)

// Sale represents a completed or draft till transaction.
type Sale struct {
	entity.Document

	// CashierID is the user who rang up the sale
	CashierID string `db:"cashier_id" json:"cashierId"`

	// PaymentMethod records how the sale was settled
	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`

	// TabID links back to the tab this sale settled, if any
	TabID *id.ID `db:"tab_id" json:"tabId,omitempty"`

	// Totals (calculated from lines)
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalAmount   types.Money    `db:"total_amount" json:"totalAmount"`

	// Table part: sold items
	Lines []SaleLine `db:"-" json:"lines"`
}

// SaleLine represents one sold item.
type SaleLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID id.ID `db:"product_id" json:"productId"`

	Quantity  types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	Amount    types.Money    `db:"amount" json:"amount"`
}

// New creates a draft sale for an outlet.
func New(outletID id.ID, cashierID string, method PaymentMethod) *Sale {
	return &Sale{
		Document:      entity.NewDocument(outletID),
		CashierID:     cashierID,
		PaymentMethod: method,
		TotalAmount:   types.ZeroMoney(),
		Lines:         make([]SaleLine, 0),
	}
}

// AddLine appends a sold item and recalculates totals.
func (s *Sale) AddLine(productID id.ID, quantity types.Quantity, unitPrice types.Money) {
	line := SaleLine{
		LineID:    id.New(),
		LineNo:    len(s.Lines) + 1,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Amount:    types.MulMoney(quantity, unitPrice),
	}

	s.Lines = append(s.Lines, line)
	s.recalculateTotals()
}

func (s *Sale) recalculateTotals() {
	s.TotalQuantity = 0
	s.TotalAmount = types.ZeroMoney()

	for _, line := range s.Lines {
		s.TotalQuantity += line.Quantity
		s.TotalAmount = s.TotalAmount.Add(line.Amount)
	}
}

// Validate implements entity.Validatable.
func (s *Sale) Validate(ctx context.Context) error {
	if err := s.Document.Validate(ctx); err != nil {
		return err
	}

	if !isValidPaymentMethod(s.PaymentMethod) {
		return apperror.NewValidation("invalid payment method").
			WithDetail("field", "paymentMethod").
			WithDetail("value", string(s.PaymentMethod))
	}

	if len(s.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range s.Lines {
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
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}

// ListFilter for filtering sales.
type ListFilter struct {
	domain.ListFilter

	OutletID      *id.ID
	CashierID     *string
	Status        *entity.DocStatus
	PaymentMethod *PaymentMethod
	DateFrom      *time.Time
	DateTo        *time.Time
}

func isValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentTab:
		return true
	}
	return false
}
