package receiving

import (
	"context"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
)

// Repository defines data access for delivery documents.
type Repository interface {
	Create(ctx context.Context, doc *Delivery) error
	GetByID(ctx context.Context, docID id.ID) (*Delivery, error)
	GetByNumber(ctx context.Context, number string) (*Delivery, error)
	Update(ctx context.Context, doc *Delivery) error
	Delete(ctx context.Context, docID id.ID) error
	GetForUpdate(ctx context.Context, docID id.ID) (*Delivery, error)

	GetLines(ctx context.Context, docID id.ID) ([]DeliveryLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []DeliveryLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Delivery], error)
}
