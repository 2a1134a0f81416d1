package dto

import (
	"time"

	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/stock"
)

// --- Response DTOs ---

// BatchResponse represents a stock batch in API responses.
type BatchResponse struct {
	ID          string         `json:"id"`
	ProductID   string         `json:"productId"`
	OutletID    string         `json:"outletId"`
	BatchNumber string         `json:"batchNumber"`
	ExpiryDate  time.Time      `json:"expiryDate"`
	Quantity    types.Quantity `json:"quantity"`
	CostPrice   *types.Money   `json:"costPrice,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// FromBatch converts entity to response DTO.
func FromBatch(b stock.Batch) BatchResponse {
	return BatchResponse{
		ID:          b.ID.String(),
		ProductID:   b.ProductID.String(),
		OutletID:    b.OutletID.String(),
		BatchNumber: b.BatchNumber,
		ExpiryDate:  b.ExpiryDate,
		Quantity:    b.Quantity,
		CostPrice:   b.CostPrice,
		CreatedAt:   b.CreatedAt,
	}
}

// StockMovementResponse represents a ledger entry in API responses.
type StockMovementResponse struct {
	ID         string         `json:"id"`
	ProductID  string         `json:"productId"`
	OutletID   string         `json:"outletId"`
	BatchID    string         `json:"batchId"`
	RecordType string         `json:"recordType"`
	Type       string         `json:"type"`
	Quantity   types.Quantity `json:"quantity"`
	Reference  string         `json:"reference,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	CreatedBy  string         `json:"createdBy,omitempty"`
}

// FromStockMovement converts entity to response DTO.
func FromStockMovement(m stock.StockMovement) StockMovementResponse {
	return StockMovementResponse{
		ID:         m.ID.String(),
		ProductID:  m.ProductID.String(),
		OutletID:   m.OutletID.String(),
		BatchID:    m.BatchID.String(),
		RecordType: string(m.RecordType),
		Type:       string(m.Type),
		Quantity:   m.Quantity,
		Reference:  m.Reference,
		CreatedAt:  m.CreatedAt,
		CreatedBy:  m.CreatedBy,
	}
}

// LocationStockResponse represents cached per-outlet stock.
type LocationStockResponse struct {
	ProductID string         `json:"productId"`
	OutletID  string         `json:"outletId"`
	Quantity  types.Quantity `json:"quantity"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// FromLocationStock converts entity to response DTO.
func FromLocationStock(ls stock.LocationStock) LocationStockResponse {
	return LocationStockResponse{
		ProductID: ls.ProductID.String(),
		OutletID:  ls.OutletID.String(),
		Quantity:  ls.Quantity,
		UpdatedAt: ls.UpdatedAt,
	}
}

// BatchDeductionResponse records how much a deduction took from one batch.
type BatchDeductionResponse struct {
	BatchID     string         `json:"batchId"`
	BatchNumber string         `json:"batchNumber"`
	Quantity    types.Quantity `json:"quantity"`
	Remaining   types.Quantity `json:"remaining"`
}

// FromBatchDeductions converts deduction records to response DTOs.
func FromBatchDeductions(dd []stock.BatchDeduction) []BatchDeductionResponse {
	out := make([]BatchDeductionResponse, len(dd))
	for i, d := range dd {
		out[i] = BatchDeductionResponse{
			BatchID:     d.BatchID.String(),
			BatchNumber: d.BatchNumber,
			Quantity:    d.Quantity,
			Remaining:   d.Remaining,
		}
	}
	return out
}

// AvailabilityResponse is the sellable quantity for a product at an outlet.
type AvailabilityResponse struct {
	ProductID string         `json:"productId"`
	OutletID  string         `json:"outletId"`
	Available types.Quantity `json:"available"`
}

// TurnoverResponse represents receipt/expense totals for a period.
type TurnoverResponse struct {
	OutletID       string         `json:"outletId,omitempty"`
	ProductID      string         `json:"productId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}

// FromTurnover converts domain turnover to response DTO.
func FromTurnover(t stock.Turnover) TurnoverResponse {
	resp := TurnoverResponse{
		OpeningBalance: t.OpeningBalance,
		Receipt:        t.Receipt,
		Expense:        t.Expense,
		ClosingBalance: t.ClosingBalance,
	}
	if !id.IsZero(t.OutletID) {
		resp.OutletID = t.OutletID.String()
	}
	if !id.IsZero(t.ProductID) {
		resp.ProductID = t.ProductID.String()
	}
	return resp
}

// SweepResponse reports how many batches an expiry sweep wrote off.
type SweepResponse struct {
	WrittenOff int `json:"writtenOff"`
}

// --- Request DTOs ---

// AdjustStockRequest sets the absolute sellable quantity for a product
// at an outlet.
type AdjustStockRequest struct {
	ProductID   string         `json:"productId" binding:"required"`
	OutletID    string         `json:"outletId" binding:"required"`
	NewQuantity types.Quantity `json:"newQuantity"`
	Reason      string         `json:"reason" binding:"required"`
}
