package dto

import (
	"tillpoint/internal/domain/catalogs/outlet"
)

// --- Request DTOs ---

// CreateOutletRequest is the request body for creating an outlet.
type CreateOutletRequest struct {
	Code      string            `json:"code"`
	Name      string            `json:"name" binding:"required"`
	Type      outlet.OutletType `json:"type" binding:"required"`
	Address   *string           `json:"address"`
	IsActive  *bool             `json:"isActive"`
	IsDefault bool              `json:"isDefault"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateOutletRequest) ToEntity() *outlet.Outlet {
	o := outlet.New(r.Code, r.Name, r.Type)
	o.Address = r.Address
	if r.IsActive != nil {
		o.IsActive = *r.IsActive
	}
	o.IsDefault = r.IsDefault
	return o
}

// UpdateOutletRequest is the request body for updating an outlet.
type UpdateOutletRequest struct {
	Code      string            `json:"code"`
	Name      string            `json:"name" binding:"required"`
	Type      outlet.OutletType `json:"type" binding:"required"`
	Address   *string           `json:"address,omitempty"`
	IsActive  bool              `json:"isActive"`
	IsDefault bool              `json:"isDefault"`
	Version   int               `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateOutletRequest) ApplyTo(o *outlet.Outlet) {
	o.Code = r.Code
	o.Name = r.Name
	o.Type = r.Type
	o.Address = r.Address
	o.IsActive = r.IsActive
	o.IsDefault = r.IsDefault
	o.Version = r.Version
}

// --- Response DTOs ---

// OutletResponse is the response body for an outlet.
type OutletResponse struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	Name         string            `json:"name"`
	Type         outlet.OutletType `json:"type"`
	Address      *string           `json:"address,omitempty"`
	IsActive     bool              `json:"isActive"`
	IsDefault    bool              `json:"isDefault"`
	DeletionMark bool              `json:"deletionMark"`
	Version      int               `json:"version"`
}

// FromOutlet creates response DTO from domain entity.
func FromOutlet(o *outlet.Outlet) *OutletResponse {
	return &OutletResponse{
		ID:           o.ID.String(),
		Code:         o.Code,
		Name:         o.Name,
		Type:         o.Type,
		Address:      o.Address,
		IsActive:     o.IsActive,
		IsDefault:    o.IsDefault,
		DeletionMark: o.DeletionMark,
		Version:      o.Version,
	}
}
