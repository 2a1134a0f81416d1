// Package product provides the product catalog: everything sellable at
// an outlet, from bottled beer to kitchen prep items.
package product

import (
	"context"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/types"
)

// Unit is the unit the product is sold in. Quantities are whole units;
// loose goods get a pack unit (e.g. "250g bag") rather than fractions.
type Unit string

const (
	UnitPiece  Unit = "piece"
	UnitPack   Unit = "pack"
	UnitBottle Unit = "bottle"
	UnitCan    Unit = "can"
	UnitKeg    Unit = "keg"
)

// Product represents a sellable item.
type Product struct {
	entity.Catalog

	// SKU is the stock-keeping unit, unique within the tenant
	SKU string `db:"sku" json:"sku"`

	// Barcode (EAN-13 etc.), optional
	Barcode *string `db:"barcode" json:"barcode,omitempty"`

	// Category groups products for filtering and reports
	Category string `db:"category" json:"category,omitempty"`

	// Unit the product is sold in
	Unit Unit `db:"unit" json:"unit"`

	// SalePrice is the current list price per unit
	SalePrice types.Money `db:"sale_price" json:"salePrice"`

	// ReorderLevel triggers low-stock warnings when available stock
	// drops below it. Zero disables the warning.
	ReorderLevel types.Quantity `db:"reorder_level" json:"reorderLevel"`

	// Perishable products must carry an expiry date on every batch
	Perishable bool `db:"perishable" json:"perishable"`

	// IsActive products appear in sale screens
	IsActive bool `db:"is_active" json:"isActive"`
}

// New creates a Product with required fields.
func New(code, name, sku string, unit Unit) *Product {
	return &Product{
		Catalog:   entity.NewCatalog(code, name),
		SKU:       sku,
		Unit:      unit,
		SalePrice: types.ZeroMoney(),
		IsActive:  true,
	}
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}

	if p.SKU == "" {
		return apperror.NewValidation("sku is required").
			WithDetail("field", "sku")
	}

	if !isValidUnit(p.Unit) {
		return apperror.NewValidation("invalid unit").
			WithDetail("field", "unit").
			WithDetail("value", string(p.Unit))
	}

	if p.SalePrice.IsNegative() {
		return apperror.NewValidation("sale price cannot be negative").
			WithDetail("field", "salePrice")
	}

	if p.ReorderLevel < 0 {
		return apperror.NewValidation("reorder level cannot be negative").
			WithDetail("field", "reorderLevel")
	}

	return nil
}

// Sellable reports whether the product can appear on a sale.
func (p *Product) Sellable() bool {
	return p.IsActive && !p.DeletionMark
}

func isValidUnit(u Unit) bool {
	switch u {
	case UnitPiece, UnitPack, UnitBottle, UnitCan, UnitKeg:
		return true
	}
	return false
}
