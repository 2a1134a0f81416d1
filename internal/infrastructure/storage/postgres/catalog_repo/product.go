package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"tillpoint/internal/domain/catalogs/product"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const productTable = "cat_products"

// ProductRepo implements product.Repository.
type ProductRepo struct {
	*BaseCatalogRepo[*product.Product]
}

// NewProductRepo creates a new product repository.
func NewProductRepo() *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*product.Product](
			productTable,
			postgres.DBColumns[product.Product](),
			func() *product.Product { return &product.Product{} },
		),
	}
}

// GetBySKU retrieves a non-deleted product by SKU.
func (r *ProductRepo) GetBySKU(ctx context.Context, sku string) (*product.Product, error) {
	q := r.Builder().
		Select(postgres.DBColumns[product.Product]()...).
		From(productTable).
		Where(squirrel.Eq{"sku": sku}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

// GetByBarcode retrieves a non-deleted product by barcode.
func (r *ProductRepo) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	q := r.Builder().
		Select(postgres.DBColumns[product.Product]()...).
		From(productTable).
		Where(squirrel.Eq{"barcode": barcode}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	return r.FindOne(ctx, q)
}

var _ product.Repository = (*ProductRepo)(nil)
