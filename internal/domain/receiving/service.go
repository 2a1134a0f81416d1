package receiving

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/numerator"
	"tillpoint/internal/core/tenant"
	"tillpoint/internal/core/tx"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stock"
	"tillpoint/pkg/logger"
)

// StockAdder is the slice of the stock engine receiving needs.
type StockAdder interface {
	Add(ctx context.Context, in stock.AddInput) (*stock.Batch, error)
}

// Service provides business operations for delivery documents.
// In Database-per-Tenant architecture, TxManager is obtained from context.
type Service struct {
	repo      Repository
	stock     StockAdder
	numerator numerator.Generator
	txManager tx.Manager // optional; nil means per-tenant context mode
}

// NewService creates a new receiving service.
func NewService(repo Repository, stockEngine StockAdder, gen numerator.Generator, txManager tx.Manager) *Service {
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

func (s *Service) ensureNumber(ctx context.Context, doc *Delivery) error {
	if doc.Number != "" {
		return nil
	}
	cfg := numerator.DefaultConfig("GRN")
	number, err := s.numerator.GetNextNumber(ctx, cfg, &numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return fmt.Errorf("generate number: %w", err)
	}
	doc.Number = number
	return nil
}

// Create saves a draft delivery without touching stock.
func (s *Service) Create(ctx context.Context, doc *Delivery) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	if err := s.ensureNumber(ctx, doc); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Receive finalizes a delivery: each line becomes a batch receipt, the
// document is marked completed, all in one transaction. Same batch
// number received twice tops up the existing batch rather than
// creating a duplicate.
func (s *Service) Receive(ctx context.Context, doc *Delivery) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	if err := doc.CanModify("delivery"); err != nil {
		return err
	}

	if err := s.ensureNumber(ctx, doc); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		isNew := doc.Version <= 1
		if isNew {
			if err := s.repo.Create(ctx, doc); err != nil {
				return fmt.Errorf("create document: %w", err)
			}
			if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
				return fmt.Errorf("save lines: %w", err)
			}
		}

		for _, line := range doc.Lines {
			cost := line.UnitCost
			_, err := s.stock.Add(ctx, stock.AddInput{
				ProductID:   line.ProductID,
				OutletID:    doc.OutletID,
				BatchNumber: line.BatchNumber,
				ExpiryDate:  line.ExpiryDate,
				Quantity:    line.Quantity,
				CostPrice:   &cost,
				Type:        stock.MovementPurchase,
				Reference:   doc.Number,
			})
			if err != nil {
				return err
			}
		}

		doc.MarkCompleted()
		return s.repo.Update(ctx, doc)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "delivery received",
		"id", doc.ID,
		"number", doc.Number,
		"supplierId", doc.SupplierID,
		"lines", len(doc.Lines),
	)
	return nil
}

// GetByID retrieves a delivery with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*Delivery, error) {
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

// Update replaces a draft delivery's header and lines.
func (s *Service) Update(ctx context.Context, doc *Delivery) error {
	existing, err := s.repo.GetByID(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := existing.CanModify("delivery"); err != nil {
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
			return err
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Delete removes a draft delivery. Completed deliveries stay: their
// batches and movements reference the document number.
func (s *Service) Delete(ctx context.Context, docID id.ID) error {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if err := doc.CanModify("delivery"); err != nil {
		return err
	}
	return s.repo.Delete(ctx, docID)
}

// List retrieves deliveries with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Delivery], error) {
	return s.repo.List(ctx, filter)
}
