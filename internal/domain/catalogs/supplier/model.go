// Package supplier provides the supplier catalog for goods receiving.
package supplier

import (
	"context"
	"regexp"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Supplier represents a goods supplier.
type Supplier struct {
	entity.Catalog

	// ContactName is the primary contact person, optional
	ContactName *string `db:"contact_name" json:"contactName,omitempty"`

	// Phone number, optional
	Phone *string `db:"phone" json:"phone,omitempty"`

	// Email address, optional
	Email *string `db:"email" json:"email,omitempty"`

	// TaxNumber is the supplier's tax registration, optional
	TaxNumber *string `db:"tax_number" json:"taxNumber,omitempty"`

	// IsActive suppliers appear in delivery forms
	IsActive bool `db:"is_active" json:"isActive"`
}

// New creates a Supplier with required fields.
func New(code, name string) *Supplier {
	return &Supplier{
		Catalog:  entity.NewCatalog(code, name),
		IsActive: true,
	}
}

// Validate implements entity.Validatable.
func (s *Supplier) Validate(ctx context.Context) error {
	if err := s.Catalog.Validate(ctx); err != nil {
		return err
	}

	if s.Email != nil && *s.Email != "" && !emailPattern.MatchString(*s.Email) {
		return apperror.NewValidation("invalid email").
			WithDetail("field", "email").
			WithDetail("value", *s.Email)
	}

	return nil
}
