package dto

import (
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/catalogs/product"
)

// --- Request DTOs ---

// CreateProductRequest is the request body for creating a product.
type CreateProductRequest struct {
	Code         string         `json:"code"`
	Name         string         `json:"name" binding:"required"`
	SKU          string         `json:"sku" binding:"required"`
	Barcode      *string        `json:"barcode"`
	Category     string         `json:"category"`
	Unit         product.Unit   `json:"unit" binding:"required"`
	SalePrice    types.Money    `json:"salePrice"`
	ReorderLevel types.Quantity `json:"reorderLevel"`
	Perishable   bool           `json:"perishable"`
	IsActive     *bool          `json:"isActive"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.New(r.Code, r.Name, r.SKU, r.Unit)
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.SalePrice = r.SalePrice
	p.ReorderLevel = r.ReorderLevel
	p.Perishable = r.Perishable
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return p
}

// UpdateProductRequest is the request body for updating a product.
type UpdateProductRequest struct {
	Code         string         `json:"code"`
	Name         string         `json:"name" binding:"required"`
	SKU          string         `json:"sku" binding:"required"`
	Barcode      *string        `json:"barcode,omitempty"`
	Category     string         `json:"category"`
	Unit         product.Unit   `json:"unit" binding:"required"`
	SalePrice    types.Money    `json:"salePrice"`
	ReorderLevel types.Quantity `json:"reorderLevel"`
	Perishable   bool           `json:"perishable"`
	IsActive     bool           `json:"isActive"`
	Version      int            `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	p.Code = r.Code
	p.Name = r.Name
	p.SKU = r.SKU
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.Unit = r.Unit
	p.SalePrice = r.SalePrice
	p.ReorderLevel = r.ReorderLevel
	p.Perishable = r.Perishable
	p.IsActive = r.IsActive
	p.Version = r.Version
}

// --- Response DTOs ---

// ProductResponse is the response body for a product.
type ProductResponse struct {
	ID           string         `json:"id"`
	Code         string         `json:"code"`
	Name         string         `json:"name"`
	SKU          string         `json:"sku"`
	Barcode      *string        `json:"barcode,omitempty"`
	Category     string         `json:"category,omitempty"`
	Unit         product.Unit   `json:"unit"`
	SalePrice    types.Money    `json:"salePrice"`
	ReorderLevel types.Quantity `json:"reorderLevel"`
	Perishable   bool           `json:"perishable"`
	IsActive     bool           `json:"isActive"`
	DeletionMark bool           `json:"deletionMark"`
	Version      int            `json:"version"`
}

// FromProduct creates response DTO from domain entity.
func FromProduct(p *product.Product) *ProductResponse {
	return &ProductResponse{
		ID:           p.ID.String(),
		Code:         p.Code,
		Name:         p.Name,
		SKU:          p.SKU,
		Barcode:      p.Barcode,
		Category:     p.Category,
		Unit:         p.Unit,
		SalePrice:    p.SalePrice,
		ReorderLevel: p.ReorderLevel,
		Perishable:   p.Perishable,
		IsActive:     p.IsActive,
		DeletionMark: p.DeletionMark,
		Version:      p.Version,
	}
}
