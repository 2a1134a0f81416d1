package dto

import (
	"tillpoint/internal/domain/catalogs/supplier"
)

// --- Request DTOs ---

// CreateSupplierRequest is the request body for creating a supplier.
type CreateSupplierRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name" binding:"required"`
	ContactName *string `json:"contactName"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	TaxNumber   *string `json:"taxNumber"`
	IsActive    *bool   `json:"isActive"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateSupplierRequest) ToEntity() *supplier.Supplier {
	s := supplier.New(r.Code, r.Name)
	s.ContactName = r.ContactName
	s.Phone = r.Phone
	s.Email = r.Email
	s.TaxNumber = r.TaxNumber
	if r.IsActive != nil {
		s.IsActive = *r.IsActive
	}
	return s
}

// UpdateSupplierRequest is the request body for updating a supplier.
type UpdateSupplierRequest struct {
	Code        string  `json:"code"`
	Name        string  `json:"name" binding:"required"`
	ContactName *string `json:"contactName,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	TaxNumber   *string `json:"taxNumber,omitempty"`
	IsActive    bool    `json:"isActive"`
	Version     int     `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateSupplierRequest) ApplyTo(s *supplier.Supplier) {
	s.Code = r.Code
	s.Name = r.Name
	s.ContactName = r.ContactName
	s.Phone = r.Phone
	s.Email = r.Email
	s.TaxNumber = r.TaxNumber
	s.IsActive = r.IsActive
	s.Version = r.Version
}

// --- Response DTOs ---

// SupplierResponse is the response body for a supplier.
type SupplierResponse struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	ContactName  *string `json:"contactName,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Email        *string `json:"email,omitempty"`
	TaxNumber    *string `json:"taxNumber,omitempty"`
	IsActive     bool    `json:"isActive"`
	DeletionMark bool    `json:"deletionMark"`
	Version      int     `json:"version"`
}

// FromSupplier creates response DTO from domain entity.
func FromSupplier(s *supplier.Supplier) *SupplierResponse {
	return &SupplierResponse{
		ID:           s.ID.String(),
		Code:         s.Code,
		Name:         s.Name,
		ContactName:  s.ContactName,
		Phone:        s.Phone,
		Email:        s.Email,
		TaxNumber:    s.TaxNumber,
		IsActive:     s.IsActive,
		DeletionMark: s.DeletionMark,
		Version:      s.Version,
	}
}
