package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stocktake"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	stockTakesTable     = "doc_stock_takes"
	stockTakeLinesTable = "doc_stock_take_lines"
)

// StockTakeRepo implements stocktake.Repository.
type StockTakeRepo struct {
	*BaseDocumentRepo[*stocktake.StockTake]
}

// NewStockTakeRepo creates a new stock take repository.
func NewStockTakeRepo() *StockTakeRepo {
	return &StockTakeRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			stockTakesTable,
			stockTakeLinesTable,
			postgres.DBColumns[stocktake.StockTake](),
			func() *stocktake.StockTake { return &stocktake.StockTake{} },
		),
	}
}

// GetLines retrieves lines for a stock take.
func (r *StockTakeRepo) GetLines(ctx context.Context, docID id.ID) ([]stocktake.CountLine, error) {
	q := r.Builder().
		Select("line_id", "line_no", "product_id", "expected_qty", "counted_qty").
		From(stockTakeLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []stocktake.CountLine
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the lines of a stock take.
func (r *StockTakeRepo) SaveLines(ctx context.Context, docID id.ID, lines []stocktake.CountLine) error {
	if err := r.DeleteLines(ctx, docID); err != nil {
		return err
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(stockTakeLinesTable).
		Columns("line_id", "document_id", "line_no", "product_id", "expected_qty", "counted_qty")

	for _, line := range lines {
		q = q.Values(line.LineID, docID, line.LineNo, line.ProductID, line.ExpectedQty, line.CountedQty)
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

// List retrieves stock takes with filtering.
func (r *StockTakeRepo) List(ctx context.Context, filter stocktake.ListFilter) (domain.ListResult[*stocktake.StockTake], error) {
	q := r.BaseSelect()

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
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

var _ stocktake.Repository = (*StockTakeRepo)(nil)
