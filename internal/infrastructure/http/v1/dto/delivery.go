package dto

import (
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/receiving"
)

// --- Request DTOs ---

// DeliveryLineRequest is one received item in a delivery request.
type DeliveryLineRequest struct {
	ProductID   string         `json:"productId" binding:"required"`
	BatchNumber string         `json:"batchNumber" binding:"required"`
	ExpiryDate  time.Time      `json:"expiryDate" binding:"required"`
	Quantity    types.Quantity `json:"quantity" binding:"required"`
	UnitCost    types.Money    `json:"unitCost"`
}

// CreateDeliveryRequest is the request body for creating a delivery.
type CreateDeliveryRequest struct {
	OutletID   string                `json:"outletId" binding:"required"`
	SupplierID string                `json:"supplierId" binding:"required"`
	Comment    string                `json:"comment"`
	Lines      []DeliveryLineRequest `json:"lines" binding:"required"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateDeliveryRequest) ToEntity() (*receiving.Delivery, error) {
	outletID, err := id.Parse(r.OutletID)
	if err != nil {
		return nil, apperror.NewValidation("invalid outletId format")
	}

	supplierID, err := id.Parse(r.SupplierID)
	if err != nil {
		return nil, apperror.NewValidation("invalid supplierId format")
	}

	doc := receiving.New(outletID, supplierID)
	doc.Comment = r.Comment

	for i, line := range r.Lines {
		productID, err := id.Parse(line.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid productId format").
				WithDetail("lineNo", i+1)
		}
		doc.AddLine(productID, line.BatchNumber, line.ExpiryDate, line.Quantity, line.UnitCost)
	}

	return doc, nil
}

// UpdateDeliveryRequest is the request body for updating a draft delivery.
type UpdateDeliveryRequest struct {
	SupplierID string                `json:"supplierId" binding:"required"`
	Comment    string                `json:"comment"`
	Lines      []DeliveryLineRequest `json:"lines" binding:"required"`
	Version    int                   `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateDeliveryRequest) ApplyTo(doc *receiving.Delivery) error {
	supplierID, err := id.Parse(r.SupplierID)
	if err != nil {
		return apperror.NewValidation("invalid supplierId format")
	}

	doc.SupplierID = supplierID
	doc.Comment = r.Comment
	doc.Version = r.Version
	doc.Lines = nil

	for i, line := range r.Lines {
		productID, err := id.Parse(line.ProductID)
		if err != nil {
			return apperror.NewValidation("invalid productId format").
				WithDetail("lineNo", i+1)
		}
		doc.AddLine(productID, line.BatchNumber, line.ExpiryDate, line.Quantity, line.UnitCost)
	}

	return nil
}

// --- Response DTOs ---

// DeliveryLineResponse is one received item in a delivery response.
type DeliveryLineResponse struct {
	LineID      string         `json:"lineId"`
	LineNo      int            `json:"lineNo"`
	ProductID   string         `json:"productId"`
	BatchNumber string         `json:"batchNumber"`
	ExpiryDate  time.Time      `json:"expiryDate"`
	Quantity    types.Quantity `json:"quantity"`
	UnitCost    types.Money    `json:"unitCost"`
}

// DeliveryResponse is the response body for a delivery.
type DeliveryResponse struct {
	ID            string                 `json:"id"`
	Number        string                 `json:"number"`
	Date          time.Time              `json:"date"`
	Status        string                 `json:"status"`
	OutletID      string                 `json:"outletId"`
	SupplierID    string                 `json:"supplierId"`
	TotalQuantity types.Quantity         `json:"totalQuantity"`
	TotalCost     types.Money            `json:"totalCost"`
	Comment       string                 `json:"comment,omitempty"`
	Lines         []DeliveryLineResponse `json:"lines"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// FromDelivery creates response DTO from domain entity.
func FromDelivery(d *receiving.Delivery) *DeliveryResponse {
	resp := &DeliveryResponse{
		ID:            d.ID.String(),
		Number:        d.Number,
		Date:          d.Date,
		Status:        string(d.Status),
		OutletID:      d.OutletID.String(),
		SupplierID:    d.SupplierID.String(),
		TotalQuantity: d.TotalQuantity,
		TotalCost:     d.TotalCost,
		Comment:       d.Comment,
		Lines:         make([]DeliveryLineResponse, len(d.Lines)),
		Version:       d.Version,
		CreatedAt:     d.CreatedAt,
	}

	for i, line := range d.Lines {
		resp.Lines[i] = DeliveryLineResponse{
			LineID:      line.LineID.String(),
			LineNo:      line.LineNo,
			ProductID:   line.ProductID.String(),
			BatchNumber: line.BatchNumber,
			ExpiryDate:  line.ExpiryDate,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
		}
	}

	return resp
}
