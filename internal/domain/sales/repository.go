package sales

import (
	"context"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
)

// Repository defines persistence for sale documents.
type Repository interface {
	Create(ctx context.Context, doc *Sale) error
	GetByID(ctx context.Context, docID id.ID) (*Sale, error)
	GetByNumber(ctx context.Context, number string) (*Sale, error)
	Update(ctx context.Context, doc *Sale) error
	Delete(ctx context.Context, docID id.ID) error
	GetForUpdate(ctx context.Context, docID id.ID) (*Sale, error)

	GetLines(ctx context.Context, docID id.ID) ([]SaleLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []SaleLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Sale], error)
}
