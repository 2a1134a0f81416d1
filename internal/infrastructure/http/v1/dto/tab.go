package dto

import (
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/domain/tabs"
)

// --- Request DTOs ---

// OpenTabRequest is the request body for opening a tab.
type OpenTabRequest struct {
	OutletID string `json:"outletId" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// TabItemRequest is one ordered item.
type TabItemRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// AddTabItemsRequest is the request body for adding items to a tab.
type AddTabItemsRequest struct {
	Items []TabItemRequest `json:"items" binding:"required"`
}

// ToItems converts request items to domain items.
func (r *AddTabItemsRequest) ToItems() ([]tabs.Item, error) {
	items := make([]tabs.Item, len(r.Items))
	for i, item := range r.Items {
		productID, err := id.Parse(item.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("itemNo", i+1)
		}
		items[i] = tabs.Item{
			ProductID: productID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return items, nil
}

// CloseTabRequest is the request body for settling a tab.
type CloseTabRequest struct {
	PaymentMethod sales.PaymentMethod `json:"paymentMethod"`
}

// --- Response DTOs ---

// TabLineResponse is one ordered item in a tab response.
type TabLineResponse struct {
	LineID    string         `json:"lineId"`
	LineNo    int            `json:"lineNo"`
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
	Amount    types.Money    `json:"amount"`
}

// TabResponse is the response body for a tab.
type TabResponse struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	Date          time.Time         `json:"date"`
	Status        string            `json:"status"`
	OutletID      string            `json:"outletId"`
	Name          string            `json:"name"`
	OpenedBy      string            `json:"openedBy"`
	SaleID        *string           `json:"saleId,omitempty"`
	TotalQuantity types.Quantity    `json:"totalQuantity"`
	TotalAmount   types.Money       `json:"totalAmount"`
	Comment       string            `json:"comment,omitempty"`
	Lines         []TabLineResponse `json:"lines"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// FromTab creates response DTO from domain entity.
func FromTab(t *tabs.Tab) *TabResponse {
	resp := &TabResponse{
		ID:            t.ID.String(),
		Number:        t.Number,
		Date:          t.Date,
		Status:        string(t.Status),
		OutletID:      t.OutletID.String(),
		Name:          t.Name,
		OpenedBy:      t.OpenedBy,
		TotalQuantity: t.TotalQuantity,
		TotalAmount:   t.TotalAmount,
		Comment:       t.Comment,
		Lines:         make([]TabLineResponse, len(t.Lines)),
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
	}

	if t.SaleID != nil {
		saleID := t.SaleID.String()
		resp.SaleID = &saleID
	}

	for i, line := range t.Lines {
		resp.Lines[i] = TabLineResponse{
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
