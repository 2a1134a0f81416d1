package product

import (
	"context"

	"tillpoint/internal/domain"
)

// Repository defines the interface for Product persistence.
type Repository interface {
	domain.CatalogRepository[*Product]

	// GetBySKU retrieves a non-deleted product by SKU.
	GetBySKU(ctx context.Context, sku string) (*Product, error)

	// GetByBarcode retrieves a non-deleted product by barcode.
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
}
