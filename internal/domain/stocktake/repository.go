package stocktake

import (
	"context"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
)

// Repository defines data access for stock take documents.
type Repository interface {
	Create(ctx context.Context, doc *StockTake) error
	GetByID(ctx context.Context, docID id.ID) (*StockTake, error)
	GetByNumber(ctx context.Context, number string) (*StockTake, error)
	Update(ctx context.Context, doc *StockTake) error
	Delete(ctx context.Context, docID id.ID) error
	GetForUpdate(ctx context.Context, docID id.ID) (*StockTake, error)

	GetLines(ctx context.Context, docID id.ID) ([]CountLine, error)
	SaveLines(ctx context.Context, docID id.ID, lines []CountLine) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockTake], error)
}
