// Package stock_repo provides the PostgreSQL implementation of the
// batch and movement-ledger storage. In Database-per-Tenant
// architecture, TxManager is obtained from context.
package stock_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/stock"
	"tillpoint/internal/infrastructure/storage/postgres"
)

const (
	batchesTable   = "stock_batches"
	movementsTable = "reg_stock_movements"
	locationsTable = "reg_stock_locations"
	productsTable  = "cat_products"

	batchColumns = "id, product_id, outlet_id, batch_number, expiry_date, quantity, cost_price, created_at, updated_at"

	// COPY beats a multi-row INSERT only once the row count justifies
	// the extra protocol round-trips.
	copyThreshold = 10
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock repository.
func NewStockRepo() *StockRepo {
	return &StockRepo{
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StockRepo) getTxManager(ctx context.Context) *postgres.TxManager {
	return postgres.MustGetTxManager(ctx)
}

// SellableBatches returns batches with remaining quantity whose expiry
// is strictly after the business date, in first-expiry-first-out order.
func (r *StockRepo) SellableBatches(ctx context.Context, productID, outletID id.ID, today time.Time) ([]stock.Batch, error) {
	return r.sellableBatches(ctx, productID, outletID, today, false)
}

// SellableBatchesForUpdate locks the rows it returns. The ORDER BY
// matches the deduction walk order so concurrent deductions for the
// same product queue on the head batch instead of deadlocking.
func (r *StockRepo) SellableBatchesForUpdate(ctx context.Context, productID, outletID id.ID, today time.Time) ([]stock.Batch, error) {
	return r.sellableBatches(ctx, productID, outletID, today, true)
}

func (r *StockRepo) sellableBatches(ctx context.Context, productID, outletID id.ID, today time.Time, forUpdate bool) ([]stock.Batch, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE product_id = $1 AND outlet_id = $2
		  AND quantity > 0
		  AND expiry_date > $3
		ORDER BY expiry_date ASC, created_at ASC
	`, batchColumns, batchesTable)
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var batches []stock.Batch
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, productID, outletID, today); err != nil {
		return nil, fmt.Errorf("select sellable batches: %w", err)
	}

	return batches, nil
}

// UpsertBatchAdd inserts a batch or adds to an existing one with the
// same product, outlet and batch number. A supplied cost price replaces
// the stored one; nil keeps it.
func (r *StockRepo) UpsertBatchAdd(ctx context.Context, b *stock.Batch) (*stock.Batch, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, product_id, outlet_id, batch_number, expiry_date, quantity, cost_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (product_id, outlet_id, batch_number) DO UPDATE SET
			quantity   = %s.quantity + EXCLUDED.quantity,
			cost_price = COALESCE(EXCLUDED.cost_price, %s.cost_price),
			updated_at = now()
		RETURNING %s
	`, batchesTable, batchesTable, batchesTable, batchColumns)

	var result stock.Batch
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &result, sql,
		b.ID, b.ProductID, b.OutletID, b.BatchNumber, b.ExpiryDate, b.Quantity, b.CostPrice)
	if err != nil {
		return nil, fmt.Errorf("upsert batch: %w", err)
	}

	return &result, nil
}

// ApplyDeductions decrements batch quantities in a single round-trip.
// The caller must hold row locks on every affected batch.
func (r *StockRepo) ApplyDeductions(ctx context.Context, deductions []stock.BatchDeduction) error {
	if len(deductions) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
	`, batchesTable)

	queries := make([]postgres.BatchQuery, 0, len(deductions))
	for _, d := range deductions {
		queries = append(queries, postgres.BatchQuery{
			SQL:  sql,
			Args: []any{d.BatchID, d.Quantity},
		})
	}

	executor := postgres.NewBatchExecutor(r.getTxManager(ctx))
	affected, err := executor.ExecuteBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("apply deductions: %w", err)
	}

	// A zero-row update means the guarded quantity check failed: the batch
	// shrank between planning and applying despite the row lock. Failing
	// here keeps batch rows and the movement ledger consistent.
	for i, n := range affected {
		if n == 0 {
			return fmt.Errorf("apply deductions: batch %s no longer holds %d units",
				deductions[i].BatchID, deductions[i].Quantity)
		}
	}

	return nil
}

// ZeroBatch writes off the full remaining quantity of a batch.
func (r *StockRepo) ZeroBatch(ctx context.Context, batchID id.ID) error {
	q := r.builder.Update(batchesTable).
		Set("quantity", int64(0)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": batchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("zero batch: %w", err)
	}

	return nil
}

// ExpiredBatchesForUpdate returns locked batches with remaining
// quantity whose expiry date has passed (a batch expiring today counts).
func (r *StockRepo) ExpiredBatchesForUpdate(ctx context.Context, today time.Time, filter stock.SweepFilter) ([]stock.Batch, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE quantity > 0 AND expiry_date <= $1
	`, batchColumns, batchesTable)

	args := []any{today}
	argIndex := 2

	if filter.OutletID != nil {
		sql += fmt.Sprintf(" AND outlet_id = $%d", argIndex)
		args = append(args, *filter.OutletID)
		argIndex++
	}
	if filter.ProductID != nil {
		sql += fmt.Sprintf(" AND product_id = $%d", argIndex)
		args = append(args, *filter.ProductID)
	}

	sql += " ORDER BY outlet_id, product_id, expiry_date ASC, created_at ASC FOR UPDATE"

	var batches []stock.Batch
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select expired batches: %w", err)
	}

	return batches, nil
}

// ExpiringBatches returns sellable batches expiring within (today, until].
func (r *StockRepo) ExpiringBatches(ctx context.Context, today, until time.Time, filter stock.SweepFilter) ([]stock.Batch, error) {
	q := r.builder.Select(
		"id", "product_id", "outlet_id", "batch_number",
		"expiry_date", "quantity", "cost_price", "created_at", "updated_at",
	).From(batchesTable).
		Where(squirrel.Gt{"quantity": int64(0)}).
		Where(squirrel.Gt{"expiry_date": today}).
		Where(squirrel.LtOrEq{"expiry_date": until})

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}

	q = q.OrderBy("expiry_date ASC", "created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batches []stock.Batch
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring batches: %w", err)
	}

	return batches, nil
}

// GetBatch retrieves one batch by ID.
func (r *StockRepo) GetBatch(ctx context.Context, batchID id.ID) (*stock.Batch, error) {
	q := r.builder.Select(
		"id", "product_id", "outlet_id", "batch_number",
		"expiry_date", "quantity", "cost_price", "created_at", "updated_at",
	).From(batchesTable).
		Where(squirrel.Eq{"id": batchID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var batch stock.Batch
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &batch, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &batch, nil
}

// CreateMovements appends ledger entries. Inside a transaction large
// inserts go through COPY; small ones use a plain multi-row INSERT.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []stock.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	columns := []string{
		"id", "product_id", "outlet_id", "batch_id",
		"record_type", "movement_type", "quantity",
		"reference", "created_at", "created_by",
	}

	txm := r.getTxManager(ctx)
	if tx := txm.GetTx(ctx); tx != nil && len(movements) >= copyThreshold {
		inserter := postgres.NewBatchInserter(txm)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.ID, m.ProductID, m.OutletID, m.BatchID,
				m.RecordType, m.Type, m.Quantity,
				m.Reference, m.CreatedAt, m.CreatedBy,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, columns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(columns...)
	for _, m := range movements {
		q = q.Values(
			m.ID, m.ProductID, m.OutletID, m.BatchID,
			m.RecordType, m.Type, m.Quantity,
			m.Reference, m.CreatedAt, m.CreatedBy,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}

	return nil
}

// GetMovementHistory returns ledger entries for a product, newest first.
func (r *StockRepo) GetMovementHistory(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]stock.StockMovement, error) {
	q := r.builder.Select(
		"id", "product_id", "outlet_id", "batch_id",
		"record_type", "movement_type", "quantity",
		"reference", "created_at", "created_by",
	).From(movementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.OutletID != nil {
		q = q.Where(squirrel.Eq{"outlet_id": *filter.OutletID})
	}
	if filter.RecordType != nil {
		q = q.Where(squirrel.Eq{"record_type": *filter.RecordType})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []stock.StockMovement
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}

	return movements, nil
}

// GetTurnover calculates receipt/expense totals and opening balance for
// a period from the ledger alone.
func (r *StockRepo) GetTurnover(ctx context.Context, filter stock.TurnoverFilter) (stock.Turnover, error) {
	var result stock.Turnover

	args := []any{filter.FromDate, filter.ToDate}
	conditions := "created_at >= $1 AND created_at < $2"
	argIndex := 3

	if filter.OutletID != nil {
		conditions += fmt.Sprintf(" AND outlet_id = $%d", argIndex)
		args = append(args, *filter.OutletID)
		result.OutletID = *filter.OutletID
		argIndex++
	}
	if filter.ProductID != nil {
		conditions += fmt.Sprintf(" AND product_id = $%d", argIndex)
		args = append(args, *filter.ProductID)
		result.ProductID = *filter.ProductID
	}

	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE 0 END), 0) AS receipt,
			COALESCE(SUM(CASE WHEN record_type = 'expense' THEN quantity ELSE 0 END), 0) AS expense
		FROM %s
		WHERE %s
	`, movementsTable, conditions)

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, args...).Scan(&result.Receipt, &result.Expense)
	if err != nil && err != pgx.ErrNoRows {
		return result, fmt.Errorf("calculate turnover: %w", err)
	}

	openingArgs := []any{filter.FromDate}
	openingConditions := "created_at < $1"
	argIndex = 2

	if filter.OutletID != nil {
		openingConditions += fmt.Sprintf(" AND outlet_id = $%d", argIndex)
		openingArgs = append(openingArgs, *filter.OutletID)
		argIndex++
	}
	if filter.ProductID != nil {
		openingConditions += fmt.Sprintf(" AND product_id = $%d", argIndex)
		openingArgs = append(openingArgs, *filter.ProductID)
	}

	openingSQL := fmt.Sprintf(`
		SELECT COALESCE(
			SUM(CASE WHEN record_type = 'receipt' THEN quantity ELSE -quantity END),
			0
		)
		FROM %s
		WHERE %s
	`, movementsTable, openingConditions)

	err = querier.QueryRow(ctx, openingSQL, openingArgs...).Scan(&result.OpeningBalance)
	if err != nil && err != pgx.ErrNoRows {
		return result, fmt.Errorf("calculate opening balance: %w", err)
	}

	result.ClosingBalance = result.OpeningBalance + result.Receipt - result.Expense

	return result, nil
}

// GetLocationStock returns the cached quantity for product+outlet.
// A missing row counts as zero stock.
func (r *StockRepo) GetLocationStock(ctx context.Context, productID, outletID id.ID) (stock.LocationStock, error) {
	var ls stock.LocationStock

	q := r.builder.Select(
		"product_id", "outlet_id", "quantity", "updated_at",
	).From(locationsTable).
		Where(squirrel.Eq{
			"product_id": productID,
			"outlet_id":  outletID,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return ls, fmt.Errorf("build query: %w", err)
	}

	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &ls, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stock.LocationStock{
				ProductID: productID,
				OutletID:  outletID,
				Quantity:  0,
			}, nil
		}
		return ls, fmt.Errorf("get location stock: %w", err)
	}

	return ls, nil
}

// ListLocationStock returns cached quantities for an outlet.
func (r *StockRepo) ListLocationStock(ctx context.Context, outletID id.ID, excludeZero bool) ([]stock.LocationStock, error) {
	q := r.builder.Select(
		"product_id", "outlet_id", "quantity", "updated_at",
	).From(locationsTable).
		Where(squirrel.Eq{"outlet_id": outletID})

	if excludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}

	q = q.OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []stock.LocationStock
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select location stock: %w", err)
	}

	return items, nil
}

// ResyncLocationStock recomputes the cache row from sellable batches.
// Idempotent; the batch aggregate is authoritative.
func (r *StockRepo) ResyncLocationStock(ctx context.Context, productID, outletID id.ID, today time.Time) (types.Quantity, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (product_id, outlet_id, quantity, updated_at)
		SELECT $1, $2, COALESCE(SUM(quantity), 0), now()
		FROM %s
		WHERE product_id = $1 AND outlet_id = $2
		  AND quantity > 0
		  AND expiry_date > $3
		ON CONFLICT (product_id, outlet_id) DO UPDATE SET
			quantity   = EXCLUDED.quantity,
			updated_at = now()
		RETURNING quantity
	`, locationsTable, batchesTable)

	var quantity types.Quantity
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, productID, outletID, today).Scan(&quantity); err != nil {
		return 0, fmt.Errorf("resync location stock: %w", err)
	}

	return quantity, nil
}

// ProductName resolves a product display name for error messages.
func (r *StockRepo) ProductName(ctx context.Context, productID id.ID) (string, error) {
	q := r.builder.Select("name").
		From(productsTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}

	var name string
	querier := r.getTxManager(ctx).GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&name); err != nil {
		if err == pgx.ErrNoRows {
			return "", apperror.NewNotFound("product", productID.String())
		}
		return "", fmt.Errorf("get product name: %w", err)
	}

	return name, nil
}

// Ensure interface compliance.
var _ stock.Repository = (*StockRepo)(nil)
