package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/receiving"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	deliveriesTable    = "doc_deliveries"
	deliveryLinesTable = "doc_delivery_lines"
)

// DeliveryRepo implements receiving.Repository.
type DeliveryRepo struct {
	*BaseDocumentRepo[*receiving.Delivery]
}

// NewDeliveryRepo creates a new delivery repository.
func NewDeliveryRepo() *DeliveryRepo {
	return &DeliveryRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			deliveriesTable,
			deliveryLinesTable,
			postgres.DBColumns[receiving.Delivery](),
			func() *receiving.Delivery { return &receiving.Delivery{} },
		),
	}
}

// GetLines retrieves lines for a delivery.
func (r *DeliveryRepo) GetLines(ctx context.Context, docID id.ID) ([]receiving.DeliveryLine, error) {
	q := r.Builder().
		Select(
			"line_id", "line_no", "product_id",
			"batch_number", "expiry_date", "quantity", "unit_cost",
		).
		From(deliveryLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []receiving.DeliveryLine
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the lines of a delivery.
func (r *DeliveryRepo) SaveLines(ctx context.Context, docID id.ID, lines []receiving.DeliveryLine) error {
	if err := r.DeleteLines(ctx, docID); err != nil {
		return err
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(deliveryLinesTable).
		Columns(
			"line_id", "document_id", "line_no", "product_id",
			"batch_number", "expiry_date", "quantity", "unit_cost",
		)

	for _, line := range lines {
		q = q.Values(
			line.LineID, docID, line.LineNo, line.ProductID,
			line.BatchNumber, line.ExpiryDate, line.Quantity, line.UnitCost,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

// List retrieves deliveries with filtering.
func (r *DeliveryRepo) List(ctx context.Context, filter receiving.ListFilter) (domain.ListResult[*receiving.Delivery], error) {
	q := r.BaseSelect()

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
	}
	if filter.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *filter.SupplierID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	return r.ListQuery(ctx, q, filter.ListFilter)
}

var _ receiving.Repository = (*DeliveryRepo)(nil)
