package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/tabs"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	tabsTable     = "doc_tabs"
	tabLinesTable = "doc_tab_lines"
)

// TabRepo implements tabs.Repository.
type TabRepo struct {
	*BaseDocumentRepo[*tabs.Tab]
}

// NewTabRepo creates a new tab repository.
func NewTabRepo() *TabRepo {
	return &TabRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			tabsTable,
			tabLinesTable,
			postgres.DBColumns[tabs.Tab](),
			func() *tabs.Tab { return &tabs.Tab{} },
		),
	}
}

// GetLines retrieves lines for a tab.
func (r *TabRepo) GetLines(ctx context.Context, docID id.ID) ([]tabs.TabLine, error) {
	q := r.Builder().
		Select("line_id", "line_no", "product_id", "quantity", "unit_price", "amount").
		From(tabLinesTable).
		Where(squirrel.Eq{"document_id": docID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []tabs.TabLine
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines replaces the lines of a tab.
func (r *TabRepo) SaveLines(ctx context.Context, docID id.ID, lines []tabs.TabLine) error {
	if err := r.DeleteLines(ctx, docID); err != nil {
		return err
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.Builder().
		Insert(tabLinesTable).
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

// List retrieves tabs with filtering.
func (r *TabRepo) List(ctx context.Context, filter tabs.ListFilter) (domain.ListResult[*tabs.Tab], error) {
	q := r.BaseSelect()

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.OpenedBy != nil {
		q = q.Where(squirrel.Eq{"opened_by": *filter.OpenedBy})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}

	return r.ListQuery(ctx, q, filter.ListFilter)
}

var _ tabs.Repository = (*TabRepo)(nil)
