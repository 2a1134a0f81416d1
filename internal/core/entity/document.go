package entity

import (
	"context"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
)

// DocStatus is the lifecycle state of a document.
type DocStatus string

const (
	// StatusDraft - document is editable, no stock effect yet
	StatusDraft DocStatus = "draft"
	// StatusCompleted - document is finalized and its stock effect applied
	StatusCompleted DocStatus = "completed"
	// StatusVoided - document was cancelled before completion
	StatusVoided DocStatus = "voided"
)

// Document is the base type for business transactions.
// Examples: Sale, Tab, Delivery, StockTake.
type Document struct {
	BaseDocument

	// Number is the document number (auto-generated, unique within type+period)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Status is the lifecycle state
	Status DocStatus `db:"status" json:"status"`

	// OutletID is the outlet the document belongs to
	OutletID id.ID `db:"outlet_id" json:"outletId"`

	// Comment is an optional user comment
	Comment string `db:"comment" json:"comment,omitempty"`
}

// NewDocument creates a new draft Document for an outlet.
func NewDocument(outletID id.ID) Document {
	return Document{
		BaseDocument: NewBaseDocument(),
		Date:         time.Now().UTC(),
		Status:       StatusDraft,
		OutletID:     outletID,
	}
}

// Validate implements Validatable interface.
func (d *Document) Validate(ctx context.Context) error {
	if id.IsZero(d.OutletID) {
		return apperror.NewValidation("outlet is required").
			WithDetail("field", "outletId")
	}

	if d.Date.IsZero() {
		return apperror.NewValidation("date is required").
			WithDetail("field", "date")
	}

	return nil
}

// CanModify checks if the document can still be edited.
// Completed and voided documents are immutable.
func (d *Document) CanModify(entityName string) error {
	if d.Status != StatusDraft {
		return apperror.NewDocumentFinalized(entityName, d.ID.String())
	}
	return nil
}

// MarkCompleted finalizes the document.
func (d *Document) MarkCompleted() {
	d.Status = StatusCompleted
	d.Touch()
}

// MarkVoided cancels the document.
func (d *Document) MarkVoided() {
	d.Status = StatusVoided
	d.Touch()
}

// IsCompleted reports whether the document is finalized.
func (d *Document) IsCompleted() bool {
	return d.Status == StatusCompleted
}
