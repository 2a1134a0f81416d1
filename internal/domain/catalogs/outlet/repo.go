package outlet

import (
	"context"

	"tillpoint/internal/domain"
)

// Repository defines the interface for Outlet persistence.
type Repository interface {
	domain.CatalogRepository[*Outlet]

	// ClearDefault clears the default flag on all outlets.
	ClearDefault(ctx context.Context) error
}
