package stock

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/tenant"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/core/types"
	"tillpoint/pkg/logger"
)

// adjustExpiryDays is how far in the future a synthetic adjustment batch
// expires. Counted stock has no real expiry, so give it a year.
const adjustExpiryDays = 365

// Service implements batch-level stock operations. All mutating operations
// run in a single transaction and keep LocationStock in sync with batches
// before committing.
//
// TxManager may be nil, in which case it is obtained from the request
// context (per-tenant mode).
type Service struct {
	repo      Repository
	txManager tx.Manager

	// now is replaceable in tests; business dates derive from it.
	now func() time.Time
}

// NewService creates a new stock service.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// NewServiceWithTx creates a stock service bound to a fixed TxManager.
// Used by the worker, which builds its own per-tenant managers.
func NewServiceWithTx(repo Repository, txm tx.Manager) *Service {
	s := NewService(repo)
	s.txManager = txm
	return s
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// today returns the current business date (UTC midnight).
func (s *Service) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AvailableStock returns the sellable quantity for a product at an outlet:
// the sum over batches with stock whose expiry date is strictly after today.
// No locks are taken; use Deduct for anything that must reserve stock.
func (s *Service) AvailableStock(ctx context.Context, productID, outletID id.ID) (types.Quantity, error) {
	batches, err := s.repo.SellableBatches(ctx, productID, outletID, s.today())
	if err != nil {
		return 0, fmt.Errorf("sellable batches: %w", err)
	}

	var total types.Quantity
	for _, b := range batches {
		total += b.Quantity
	}
	return total, nil
}

// BatchForSale returns the batch the next deduction would draw from first,
// or nil when the sellable total cannot cover the required quantity.
// Advisory only: the answer may change before a Deduct runs.
func (s *Service) BatchForSale(ctx context.Context, productID, outletID id.ID, required types.Quantity) (*Batch, error) {
	if required <= 0 {
		return nil, apperror.NewValidation("required quantity must be positive")
	}

	batches, err := s.repo.SellableBatches(ctx, productID, outletID, s.today())
	if err != nil {
		return nil, fmt.Errorf("sellable batches: %w", err)
	}

	var total types.Quantity
	for _, b := range batches {
		total += b.Quantity
	}
	if total < required {
		return nil, nil
	}
	head := batches[0]
	return &head, nil
}

// Deduct removes quantity from a product's batches in expiry order
// (earliest expiry first, ties broken by creation time). Batches are locked
// in that order, the total is verified up front, and the whole deduction is
// all-or-nothing: either every touched batch is updated and a ledger entry
// written per batch, or nothing changes.
func (s *Service) Deduct(ctx context.Context, in DeductInput) ([]BatchDeduction, error) {
	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	mt := in.Type
	if mt == "" {
		mt = MovementSale
	}
	if !mt.IsOutbound() {
		return nil, apperror.NewValidation(fmt.Sprintf("movement type %q cannot decrease stock", mt))
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var deductions []BatchDeduction
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		today := s.today()

		batches, err := s.repo.SellableBatchesForUpdate(ctx, in.ProductID, in.OutletID, today)
		if err != nil {
			return fmt.Errorf("lock batches: %w", err)
		}

		var available types.Quantity
		for _, b := range batches {
			available += b.Quantity
		}
		if available < in.Quantity {
			return s.insufficientStock(ctx, in.ProductID, in.Quantity, available)
		}

		deductions = planDeductions(batches, in.Quantity)

		if err := s.repo.ApplyDeductions(ctx, deductions); err != nil {
			return fmt.Errorf("apply deductions: %w", err)
		}

		movements := make([]StockMovement, 0, len(deductions))
		for _, d := range deductions {
			movements = append(movements, StockMovement{
				ID:         id.New(),
				ProductID:  in.ProductID,
				OutletID:   in.OutletID,
				BatchID:    d.BatchID,
				RecordType: RecordTypeExpense,
				Type:       mt,
				Quantity:   d.Quantity,
				Reference:  in.Reference,
				CreatedAt:  s.now().UTC(),
				CreatedBy:  appctx.GetUserID(ctx),
			})
		}
		if err := s.repo.CreateMovements(ctx, movements); err != nil {
			return fmt.Errorf("create movements: %w", err)
		}

		if _, err := s.repo.ResyncLocationStock(ctx, in.ProductID, in.OutletID, today); err != nil {
			return fmt.Errorf("resync location stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "stock deducted",
		"product_id", in.ProductID,
		"outlet_id", in.OutletID,
		"quantity", in.Quantity,
		"batches", len(deductions),
		"type", mt,
	)
	return deductions, nil
}

// planDeductions walks batches in the order given and splits the requested
// quantity across them. Callers verify the total first.
func planDeductions(batches []Batch, requested types.Quantity) []BatchDeduction {
	var plan []BatchDeduction
	remaining := requested
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		plan = append(plan, BatchDeduction{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			Remaining:   b.Quantity - take,
		})
		remaining -= take
	}
	return plan
}

// Add receives quantity into a batch, creating it if needed. Receiving the
// same batch number again adds to the existing batch; a supplied cost price
// overwrites the stored one (latest delivery wins).
func (s *Service) Add(ctx context.Context, in AddInput) (*Batch, error) {
	if in.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if in.BatchNumber == "" {
		return nil, apperror.NewValidation("batch number is required")
	}
	if in.ExpiryDate.IsZero() {
		return nil, apperror.NewValidation("expiry date is required")
	}
	mt := in.Type
	if mt == "" {
		mt = MovementPurchase
	}
	if !mt.IsInbound() {
		return nil, apperror.NewValidation(fmt.Sprintf("movement type %q cannot add stock", mt))
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var result *Batch
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		batch := &Batch{
			ID:          id.New(),
			ProductID:   in.ProductID,
			OutletID:    in.OutletID,
			BatchNumber: in.BatchNumber,
			ExpiryDate:  dateOnly(in.ExpiryDate),
			Quantity:    in.Quantity,
			CostPrice:   in.CostPrice,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		result, err = s.repo.UpsertBatchAdd(ctx, batch)
		if err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}

		movement := StockMovement{
			ID:         id.New(),
			ProductID:  in.ProductID,
			OutletID:   in.OutletID,
			BatchID:    result.ID,
			RecordType: RecordTypeReceipt,
			Type:       mt,
			Quantity:   in.Quantity,
			Reference:  in.Reference,
			CreatedAt:  now,
			CreatedBy:  appctx.GetUserID(ctx),
		}
		if err := s.repo.CreateMovements(ctx, []StockMovement{movement}); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		if _, err := s.repo.ResyncLocationStock(ctx, in.ProductID, in.OutletID, s.today()); err != nil {
			return fmt.Errorf("resync location stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "stock added",
		"product_id", in.ProductID,
		"outlet_id", in.OutletID,
		"batch", result.BatchNumber,
		"quantity", in.Quantity,
	)
	return result, nil
}

// Adjust sets the absolute sellable quantity after a physical count.
// A positive difference goes into a synthetic dated batch; a negative one
// is deducted FIFO like a sale. Returns the synthetic batch when stock was
// added, nil otherwise.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (*Batch, error) {
	if in.NewQuantity < 0 {
		return nil, apperror.NewValidation("new quantity cannot be negative")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var result *Batch
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		today := s.today()

		// Lock the batches so the counted total cannot drift while the
		// diff is applied.
		batches, err := s.repo.SellableBatchesForUpdate(ctx, in.ProductID, in.OutletID, today)
		if err != nil {
			return fmt.Errorf("lock batches: %w", err)
		}
		var current types.Quantity
		for _, b := range batches {
			current += b.Quantity
		}

		diff := in.NewQuantity - current
		if diff == 0 {
			return nil
		}

		// The synthetic batch number doubles as the movement reference, so
		// both sides of an adjustment trace back to the same code.
		synthetic := fmt.Sprintf("ADJ-%s-%s", today.Format("20060102"), shortID(in.ProductID))
		now := s.now().UTC()

		if diff > 0 {
			batch := &Batch{
				ID:          id.New(),
				ProductID:   in.ProductID,
				OutletID:    in.OutletID,
				BatchNumber: synthetic,
				ExpiryDate:  today.AddDate(0, 0, adjustExpiryDays),
				Quantity:    diff,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			result, err = s.repo.UpsertBatchAdd(ctx, batch)
			if err != nil {
				return fmt.Errorf("upsert adjustment batch: %w", err)
			}
			movement := StockMovement{
				ID:         id.New(),
				ProductID:  in.ProductID,
				OutletID:   in.OutletID,
				BatchID:    result.ID,
				RecordType: RecordTypeReceipt,
				Type:       MovementAdjustment,
				Quantity:   diff,
				Reference:  synthetic,
				CreatedAt:  now,
				CreatedBy:  appctx.GetUserID(ctx),
			}
			if err := s.repo.CreateMovements(ctx, []StockMovement{movement}); err != nil {
				return fmt.Errorf("create movement: %w", err)
			}
		} else {
			deductions := planDeductions(batches, -diff)
			if err := s.repo.ApplyDeductions(ctx, deductions); err != nil {
				return fmt.Errorf("apply deductions: %w", err)
			}
			movements := make([]StockMovement, 0, len(deductions))
			for _, d := range deductions {
				movements = append(movements, StockMovement{
					ID:         id.New(),
					ProductID:  in.ProductID,
					OutletID:   in.OutletID,
					BatchID:    d.BatchID,
					RecordType: RecordTypeExpense,
					Type:       MovementAdjustment,
					Quantity:   d.Quantity,
					Reference:  synthetic,
					CreatedAt:  now,
					CreatedBy:  appctx.GetUserID(ctx),
				})
			}
			if err := s.repo.CreateMovements(ctx, movements); err != nil {
				return fmt.Errorf("create movements: %w", err)
			}
		}

		if _, err := s.repo.ResyncLocationStock(ctx, in.ProductID, in.OutletID, today); err != nil {
			return fmt.Errorf("resync location stock: %w", err)
		}

		logger.Info(ctx, "stock adjusted",
			"product_id", in.ProductID,
			"outlet_id", in.OutletID,
			"previous", current,
			"new", in.NewQuantity,
			"reason", in.Reason,
			"reference", synthetic,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkExpiredBatches writes off every batch whose expiry date has passed
// (or is today) and still holds stock. Each batch gets one expiry movement
// for its full remaining quantity before being zeroed. Returns the number
// of batches written off.
func (s *Service) MarkExpiredBatches(ctx context.Context, filter SweepFilter) (int, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return 0, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var swept int
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		today := s.today()

		expired, err := s.repo.ExpiredBatchesForUpdate(ctx, today, filter)
		if err != nil {
			return fmt.Errorf("lock expired batches: %w", err)
		}
		if len(expired) == 0 {
			return nil
		}

		now := s.now().UTC()
		movements := make([]StockMovement, 0, len(expired))
		type pair struct{ product, outlet id.ID }
		touched := make(map[pair]struct{})

		for _, b := range expired {
			movements = append(movements, StockMovement{
				ID:         id.New(),
				ProductID:  b.ProductID,
				OutletID:   b.OutletID,
				BatchID:    b.ID,
				RecordType: RecordTypeExpense,
				Type:       MovementExpiry,
				Quantity:   b.Quantity,
				Reference:  fmt.Sprintf("EXP-%s", today.Format("20060102")),
				CreatedAt:  now,
			})
			if err := s.repo.ZeroBatch(ctx, b.ID); err != nil {
				return fmt.Errorf("zero batch %s: %w", b.ID, err)
			}
			touched[pair{b.ProductID, b.OutletID}] = struct{}{}
		}

		if err := s.repo.CreateMovements(ctx, movements); err != nil {
			return fmt.Errorf("create movements: %w", err)
		}

		for p := range touched {
			if _, err := s.repo.ResyncLocationStock(ctx, p.product, p.outlet, today); err != nil {
				return fmt.Errorf("resync location stock: %w", err)
			}
		}

		swept = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		logger.Info(ctx, "expired batches written off", "count", swept)
	}
	return swept, nil
}

// ExpiringSoon returns sellable batches that will expire within the given
// number of days, ordered by expiry date.
func (s *Service) ExpiringSoon(ctx context.Context, days int, filter SweepFilter) ([]Batch, error) {
	if days <= 0 {
		return nil, apperror.NewValidation("days must be positive")
	}
	today := s.today()
	return s.repo.ExpiringBatches(ctx, today, today.AddDate(0, 0, days), filter)
}

// CachedStock returns the cached LocationStock row for product+outlet.
func (s *Service) CachedStock(ctx context.Context, productID, outletID id.ID) (LocationStock, error) {
	return s.repo.GetLocationStock(ctx, productID, outletID)
}

// OutletStock returns cached quantities for every stocked product at an outlet.
func (s *Service) OutletStock(ctx context.Context, outletID id.ID) ([]LocationStock, error) {
	return s.repo.ListLocationStock(ctx, outletID, true)
}

// MovementHistory returns ledger entries for a product, newest first.
func (s *Service) MovementHistory(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.GetMovementHistory(ctx, productID, filter)
}

// TurnoverReport calculates receipt and expense totals for a period.
func (s *Service) TurnoverReport(ctx context.Context, filter TurnoverFilter) (Turnover, error) {
	if filter.ToDate.Before(filter.FromDate) {
		return Turnover{}, apperror.NewValidation("to_date must not be before from_date")
	}
	return s.repo.GetTurnover(ctx, filter)
}

// insufficientStock builds the shortage error with the product display name.
func (s *Service) insufficientStock(ctx context.Context, productID id.ID, requested, available types.Quantity) error {
	name, err := s.repo.ProductName(ctx, productID)
	if err != nil || name == "" {
		name = productID.String()
	}
	return apperror.NewInsufficientStock(name, requested, available)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// shortID keeps synthetic batch numbers readable.
func shortID(v id.ID) string {
	s := v.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
