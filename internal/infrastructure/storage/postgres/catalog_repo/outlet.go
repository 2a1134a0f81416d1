package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"tillpoint/internal/domain/catalogs/outlet"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const outletTable = "cat_outlets"

// OutletRepo implements outlet.Repository.
type OutletRepo struct {
	*BaseCatalogRepo[*outlet.Outlet]
}

// NewOutletRepo creates a new outlet repository.
func NewOutletRepo() *OutletRepo {
	return &OutletRepo{
		BaseCatalogRepo: NewBaseCatalogRepo[*outlet.Outlet](
			outletTable,
			postgres.DBColumns[outlet.Outlet](),
			func() *outlet.Outlet { return &outlet.Outlet{} },
		),
	}
}

// ClearDefault clears the default flag on all outlets.
func (r *OutletRepo) ClearDefault(ctx context.Context) error {
	q := r.Builder().
		Update(outletTable).
		Set("is_default", false).
		Where(squirrel.Eq{"is_default": true})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("clear default: %w", err)
	}

	return nil
}

var _ outlet.Repository = (*OutletRepo)(nil)
