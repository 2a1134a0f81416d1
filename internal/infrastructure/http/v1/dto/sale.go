package dto

import (
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/domain/stock"
)

// --- Request DTOs ---

// SaleLineRequest is one sold item in a sale request.
type SaleLineRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// CreateSaleRequest is the request body for creating a sale.
type CreateSaleRequest struct {
	OutletID      string              `json:"outletId" binding:"required"`
	PaymentMethod sales.PaymentMethod `json:"paymentMethod" binding:"required"`
	Comment       string              `json:"comment"`
	Lines         []SaleLineRequest   `json:"lines" binding:"required"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateSaleRequest) ToEntity(cashierID string) (*sales.Sale, error) {
	outletID, err := id.Parse(r.OutletID)
	if err != nil {
		return nil, apperror.NewValidation("invalid outletId format")
	}

	doc := sales.New(outletID, cashierID, r.PaymentMethod)
	doc.Comment = r.Comment

	for i, line := range r.Lines {
		productID, err := id.Parse(line.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("lineNo", i+1)
		}
		doc.AddLine(productID, line.Quantity, line.UnitPrice)
	}

	return doc, nil
}

// --- Response DTOs ---

// SaleLineResponse is one sold item in a sale response.
type SaleLineResponse struct {
	LineID    string         `json:"lineId"`
	LineNo    int            `json:"lineNo"`
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
	Amount    types.Money    `json:"amount"`
}

// SaleResponse is the response body for a sale.
type SaleResponse struct {
	ID            string             `json:"id"`
	Number        string             `json:"number"`
	Date          time.Time          `json:"date"`
	Status        string             `json:"status"`
	OutletID      string             `json:"outletId"`
	CashierID     string             `json:"cashierId"`
	PaymentMethod string             `json:"paymentMethod"`
	TabID         *string            `json:"tabId,omitempty"`
	TotalQuantity types.Quantity     `json:"totalQuantity"`
	TotalAmount   types.Money        `json:"totalAmount"`
	Comment       string             `json:"comment,omitempty"`
	Lines         []SaleLineResponse `json:"lines"`
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// FromSale creates response DTO from domain entity.
func FromSale(s *sales.Sale) *SaleResponse {
	resp := &SaleResponse{
		ID:            s.ID.String(),
		Number:        s.Number,
		Date:          s.Date,
		Status:        string(s.Status),
		OutletID:      s.OutletID.String(),
		CashierID:     s.CashierID,
		PaymentMethod: string(s.PaymentMethod),
		TotalQuantity: s.TotalQuantity,
		TotalAmount:   s.TotalAmount,
		Comment:       s.Comment,
		Lines:         make([]SaleLineResponse, len(s.Lines)),
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
	}

	if s.TabID != nil {
		tabID := s.TabID.String()
		resp.TabID = &tabID
	}

	for i, line := range s.Lines {
		resp.Lines[i] = SaleLineResponse{
			LineID:    line.LineID.String(),
			LineNo:    line.LineNo,
			ProductID: line.ProductID.String(),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Amount:    line.Amount,
		}
	}

	return resp
}

// CheckoutResponse is the response body for a completed checkout.
type CheckoutResponse struct {
	Sale       *SaleResponse            `json:"sale"`
	Deductions []BatchDeductionResponse `json:"deductions"`
}

// NewCheckoutResponse builds a checkout response.
func NewCheckoutResponse(s *sales.Sale, dd []stock.BatchDeduction) CheckoutResponse {
	return CheckoutResponse{
		Sale:       FromSale(s),
		Deductions: FromBatchDeductions(dd),
	}
}
