package sales

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
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stock"
	"tillpoint/pkg/logger"
)

// StockDeductor is the slice of the stock engine a checkout needs.
type StockDeductor interface {
	Deduct(ctx context.Context, in stock.DeductInput) ([]stock.BatchDeduction, error)
}

// Service provides business operations for sale documents.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo      Repository
	stock     StockDeductor
	numerator numerator.Generator
	txManager tx.Manager // optional; nil means per-tenant context mode
	hooks     *domain.HookRegistry[*Sale]
}

// NewService creates a new sales service.
func NewService(repo Repository, stockEngine StockDeductor, gen numerator.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		stock:     stockEngine,
		numerator: gen,
		txManager: txManager,
		hooks:     domain.NewHookRegistry[*Sale](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*Sale] {
	return s.hooks
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

func (s *Service) ensureNumber(ctx context.Context, doc *Sale) error {
	if doc.Number != "" {
		return nil
	}
	// Sales are fiscal documents: strict numbering, no gaps.
	cfg := numerator.DefaultConfig("SALE")
	number, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: numerator.StrategyStrict}, time.Now())
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	doc.Number = number
	return nil
}

// Create saves a draft sale without touching stock.
func (s *Service) Create(ctx context.Context, doc *Sale) error {
	if err := s.hooks.Run(ctx, domain.BeforeCreate, doc); err != nil {
		return err
	}

	if err := doc.Validate(ctx); err != nil {
		return err
	}

	if doc.CashierID == "" {
		doc.CashierID = appctx.GetUserID(ctx)
	}

	if err := s.ensureNumber(ctx, doc); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return err
	}

	if err := s.hooks.Run(ctx, domain.AfterCreate, doc); err != nil {
		logger.Warn(ctx, "after-create hook failed", "error", err)
	}

	return nil
}

// Checkout finalizes a sale: the document, its lines, one stock
// deduction per line and the status change all commit atomically.
// Any line short on stock rolls everything back.
func (s *Service) Checkout(ctx context.Context, doc *Sale) ([]stock.BatchDeduction, error) {
	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	if err := doc.CanModify("sale"); err != nil {
		return nil, err
	}

	if doc.CashierID == "" {
		doc.CashierID = appctx.GetUserID(ctx)
	}

	if err := s.ensureNumber(ctx, doc); err != nil {
		return nil, err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	isNew := doc.Version <= 1
	if isNew {
		if err := s.hooks.Run(ctx, domain.BeforeCreate, doc); err != nil {
			return nil, err
		}
	}

	var deductions []stock.BatchDeduction
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if isNew {
			if err := s.repo.Create(ctx, doc); err != nil {
				return fmt.Errorf("create document: %w", err)
			}
			if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
				return fmt.Errorf("save lines: %w", err)
			}
		}

		for _, line := range doc.Lines {
			dd, err := s.stock.Deduct(ctx, stock.DeductInput{
				ProductID: line.ProductID,
				OutletID:  doc.OutletID,
				Quantity:  line.Quantity,
				Type:      stock.MovementSale,
				Reference: doc.Number,
			})
			if err != nil {
				return err
			}
			deductions = append(deductions, dd...)
		}

		doc.MarkCompleted()
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("complete document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if isNew {
		if err := s.hooks.Run(ctx, domain.AfterCreate, doc); err != nil {
			logger.Warn(ctx, "after-create hook failed", "error", err)
		}
	}

	logger.Info(ctx, "sale completed",
		"id", doc.ID,
		"number", doc.Number,
		"outletId", doc.OutletID,
		"total", doc.TotalAmount,
		"batches", len(deductions))

	return deductions, nil
}

// GetByID retrieves a sale with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*Sale, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines

	return doc, nil
}

// Update updates a draft sale.
func (s *Service) Update(ctx context.Context, doc *Sale) error {
	if err := doc.CanModify("sale"); err != nil {
		return err
	}

	if err := doc.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Void cancels a draft sale. Completed sales are immutable; corrections
// go through a return, not a void.
func (s *Service) Void(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}

	if err := doc.CanModify("sale"); err != nil {
		return err
	}

	doc.MarkVoided()
	return s.repo.Update(ctx, doc)
}

// Delete soft-deletes a draft sale.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}

	if err := doc.CanModify("sale"); err != nil {
		return err
	}

	return s.repo.Delete(ctx, docID)
}

// List retrieves sales with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Sale], error) {
	return s.repo.List(ctx, filter)
}
