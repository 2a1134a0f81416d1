package stocktake

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/numerator"
	"tillpoint/internal/core/tenant"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stock"
	"tillpoint/pkg/logger"
)

// StockAdjuster is the slice of the stock engine a stock take needs.
type StockAdjuster interface {
	Adjust(ctx context.Context, in stock.AdjustInput) (*stock.Batch, error)
	AvailableStock(ctx context.Context, productID, outletID id.ID) (types.Quantity, error)
}

// Service provides business operations for stock take documents.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo      Repository
	stock     StockAdjuster
	numerator numerator.Generator
	txManager tx.Manager // optional; nil means per-tenant context mode
}

// NewService creates a new stocktake service.
func NewService(repo Repository, stockEngine StockAdjuster, gen numerator.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		stock:     stockEngine,
		numerator: gen,
		txManager: txManager,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

func (s *Service) ensureNumber(ctx context.Context, doc *StockTake) error {
	if doc.Number != "" {
		return nil
	}
	cfg := numerator.DefaultConfig("ST")
	number, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	doc.Number = number
	return nil
}

// Start creates a draft stock take, snapshotting the expected quantity
// for each product so the variance is measured against the moment the
// count began.
func (s *Service) Start(ctx context.Context, outletID id.ID, productIDs []id.ID) (*StockTake, error) {
	if len(productIDs) == 0 {
		return nil, apperror.NewValidation("no products to count").WithDetail("field", "productIds")
	}

	doc := New(outletID, appctx.GetUserID(ctx))
	for _, productID := range productIDs {
		expected, err := s.stock.AvailableStock(ctx, productID, outletID)
		if err != nil {
			return nil, err
		}
		doc.AddLine(productID, expected, expected)
	}

	if err := s.ensureNumber(ctx, doc); err != nil {
		return nil, err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// RecordCounts updates counted quantities on a draft stock take.
func (s *Service) RecordCounts(ctx context.Context, docID id.ID, counts map[id.ID]types.Quantity) (*StockTake, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var doc *StockTake
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.CanModify("stock take"); err != nil {
			return err
		}

		doc.Lines, err = s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		for i := range doc.Lines {
			if counted, ok := counts[doc.Lines[i].ProductID]; ok {
				if counted < 0 {
					return apperror.NewValidation("counted quantity cannot be negative").
						WithDetail("productId", doc.Lines[i].ProductID)
				}
				doc.Lines[i].CountedQty = counted
			}
		}

		if err := s.repo.SaveLines(ctx, docID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Complete applies the count: every line's sellable quantity is forced
// to the counted value, the deltas are written to the ledger with the
// document number as reason, and the document is finalized. One
// transaction; a failing line rolls back the whole count.
func (s *Service) Complete(ctx context.Context, docID id.ID) (*StockTake, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var doc *StockTake
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}

		if err := doc.CanModify("stock take"); err != nil {
			return err
		}

		doc.Lines, err = s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		if err := doc.Validate(ctx); err != nil {
			return err
		}

		reason := fmt.Sprintf("stock take %s", doc.Number)
		for _, line := range doc.Lines {
			_, err := s.stock.Adjust(ctx, stock.AdjustInput{
				ProductID:   line.ProductID,
				OutletID:    doc.OutletID,
				NewQuantity: line.CountedQty,
				Reason:      reason,
			})
			if err != nil {
				return err
			}
		}

		doc.MarkCompleted()
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock take completed",
		"id", doc.ID,
		"number", doc.Number,
		"lines", len(doc.Lines),
	)
	return doc, nil
}

// Void cancels a draft stock take.
func (s *Service) Void(ctx context.Context, docID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.CanModify("stock take"); err != nil {
			return err
		}
		doc.MarkVoided()
		return s.repo.Update(ctx, doc)
	})
}

// GetByID retrieves a stock take with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockTake, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	doc.Lines, err = s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return doc, nil
}

// List retrieves stock takes with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockTake], error) {
	return s.repo.List(ctx, filter)
}
