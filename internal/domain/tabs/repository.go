package tabs

import (
	"context"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
)

// Repository defines persistence for tab documents.
type Repository interface {
	Create(ctx context.Context, doc *Tab) error
	GetByID(ctx context.Context, docID id.ID) (*Tab, error)
	GetByNumber(ctx context.Context, number string) (*Tab, error)
	Update(ctx context.Context, doc *Tab) error
	GetForUpdate(ctx context.Context, docID id.ID) (*Tab, error)

	GetLines(ctx context.Context, docID id.ID) ([]TabLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []TabLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Tab], error)
}
