// Package outlet provides the outlet catalog. An outlet is a stock
// location a till can sell from: a shop floor, a bar, a kitchen store.
package outlet

import (
	"context"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
)

// OutletType classifies the outlet.
type OutletType string

const (
	TypeShop    OutletType = "shop"
	TypeBar     OutletType = "bar"
	TypeKitchen OutletType = "kitchen"
	TypeStore   OutletType = "store" // back-of-house storage, no till
)

// Outlet represents a stock location.
type Outlet struct {
	entity.Catalog

	// Type classifies the outlet
	Type OutletType `db:"type" json:"type"`

	// Address is the physical address, optional
	Address *string `db:"address" json:"address,omitempty"`

	// IsActive outlets accept sales and deliveries
	IsActive bool `db:"is_active" json:"isActive"`

	// IsDefault marks the outlet preselected on new documents
	IsDefault bool `db:"is_default" json:"isDefault"`
}

// New creates an Outlet with required fields.
func New(code, name string, outletType OutletType) *Outlet {
	return &Outlet{
		Catalog:  entity.NewCatalog(code, name),
		Type:     outletType,
		IsActive: true,
	}
}

// Validate implements entity.Validatable.
func (o *Outlet) Validate(ctx context.Context) error {
	if err := o.Catalog.Validate(ctx); err != nil {
		return err
	}

	if !isValidOutletType(o.Type) {
		return apperror.NewValidation("invalid outlet type").
			WithDetail("field", "type").
			WithDetail("value", string(o.Type))
	}

	return nil
}

// CanSell reports whether sales may be rung up against this outlet.
func (o *Outlet) CanSell() bool {
	return o.IsActive && !o.DeletionMark && o.Type != TypeStore
}

// CanReceive reports whether deliveries may be booked into this outlet.
func (o *Outlet) CanReceive() bool {
	return o.IsActive && !o.DeletionMark
}

func isValidOutletType(t OutletType) bool {
	switch t {
	case TypeShop, TypeBar, TypeKitchen, TypeStore:
		return true
	}
	return false
}
