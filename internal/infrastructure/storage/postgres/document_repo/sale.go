package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "doc_sales"
	saleLinesTable = "doc_sale_lines"
)

// SaleRepo implements sales.Repository.
type SaleRepo struct {
	*BaseDocumentRepo[*sales.Sale]
}

// NewSaleRepo creates a new sale repository.
func NewSaleRepo() *SaleRepo {
	return &SaleRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			salesTable,
			saleLinesTable,
			postgres.DBColumns[sales.Sale](),
			func() *sales.Sale { return &sales.Sale{} },
		),
	}
}

// GetLines retrieves lines for a sale.
func (r *SaleRepo) GetLines(ctx context.Context, docID id.ID) ([]sales.SaleLine, error) {
	q := r.Builder().
		Select("line_id", "line_no", "product_id", "quantity", "unit_price", "amount").
		From(saleLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []sales.SaleLine
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the lines of a sale.
func (r *SaleRepo) SaveLines(ctx context.Context, docID id.ID, lines []sales.SaleLine) error {
	if err := r.DeleteLines(ctx, docID); err != nil {
		return err
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(saleLinesTable).
		Columns("line_id", "document_id", "line_no", "product_id", "quantity", "unit_price", "amount")

	for _, line := range lines {
		q = q.Values(line.LineID, docID, line.LineNo, line.ProductID, line.Quantity, line.UnitPrice, line.Amount)
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

// List retrieves sales with filtering.
func (r *SaleRepo) List(ctx context.Context, filter sales.ListFilter) (domain.ListResult[*sales.Sale], error) {
	q := r.BaseSelect()

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
	}
	if filter.CashierID != nil {
		q = q.Where(squirrel.Eq{"cashier_id": *filter.CashierID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.PaymentMethod != nil {
		q = q.Where(squirrel.Eq{"payment_method": *filter.PaymentMethod})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	return r.ListQuery(ctx, q, filter.ListFilter)
}

var _ sales.Repository = (*SaleRepo)(nil)
