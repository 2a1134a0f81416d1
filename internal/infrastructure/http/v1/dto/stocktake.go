package dto

import (
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/stocktake"
)

// --- Request DTOs ---

// StartStockTakeRequest is the request body for starting a stock take.
type StartStockTakeRequest struct {
	OutletID   string   `json:"outletId" binding:"required"`
	ProductIDs []string `json:"productIds" binding:"required"`
}

// ParseProductIDs converts the product ID strings to IDs.
func (r *StartStockTakeRequest) ParseProductIDs() ([]id.ID, error) {
	ids := make([]id.ID, len(r.ProductIDs))
	for i, s := range r.ProductIDs {
		parsed, err := id.Parse(s)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("value", s)
		}
		ids[i] = parsed
	}
	return ids, nil
}

// CountRequest is one physical count.
type CountRequest struct {
	ProductID  string         `json:"productId" binding:"required"`
	CountedQty types.Quantity `json:"countedQty"`
}

// RecordCountsRequest is the request body for recording counts.
type RecordCountsRequest struct {
	Counts []CountRequest `json:"counts" binding:"required"`
}

// ToCounts converts the request to a product-to-quantity map.
func (r *RecordCountsRequest) ToCounts() (map[id.ID]types.Quantity, error) {
	counts := make(map[id.ID]types.Quantity, len(r.Counts))
	for _, c := range r.Counts {
		productID, err := id.Parse(c.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("value", c.ProductID)
		}
		counts[productID] = c.CountedQty
	}
	return counts, nil
}

// --- Response DTOs ---

// CountLineResponse is one counted product in a stock take response.
type CountLineResponse struct {
	LineID      string         `json:"lineId"`
	LineNo      int            `json:"lineNo"`
	ProductID   string         `json:"productId"`
	ExpectedQty types.Quantity `json:"expectedQty"`
	CountedQty  types.Quantity `json:"countedQty"`
	Variance    types.Quantity `json:"variance"`
}

// StockTakeResponse is the response body for a stock take.
type StockTakeResponse struct {
	ID        string              `json:"id"`
	Number    string              `json:"number"`
	Date      time.Time           `json:"date"`
	Status    string              `json:"status"`
	OutletID  string              `json:"outletId"`
	CountedBy string              `json:"countedBy"`
	Comment   string              `json:"comment,omitempty"`
	Lines     []CountLineResponse `json:"lines"`
	Version   int                 `json:"version"`
	CreatedAt time.Time           `json:"createdAt"`
}

// FromStockTake creates response DTO from domain entity.
func FromStockTake(st *stocktake.StockTake) *StockTakeResponse {
	resp := &StockTakeResponse{
		ID:        st.ID.String(),
		Number:    st.Number,
		Date:      st.Date,
		Status:    string(st.Status),
		OutletID:  st.OutletID.String(),
		CountedBy: st.CountedBy,
		Comment:   st.Comment,
		Lines:     make([]CountLineResponse, len(st.Lines)),
		Version:   st.Version,
		CreatedAt: st.CreatedAt,
	}

	for i, line := range st.Lines {
		resp.Lines[i] = CountLineResponse{
			LineID:      line.LineID.String(),
			LineNo:      line.LineNo,
			ProductID:   line.ProductID.String(),
			ExpectedQty: line.ExpectedQty,
			CountedQty:  line.CountedQty,
			Variance:    line.Variance(),
		}
	}

	return resp
}
