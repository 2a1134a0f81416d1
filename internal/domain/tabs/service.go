package tabs

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
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/domain/stock"
	"tillpoint/pkg/logger"
)

// Checkouter settles a sale; satisfied by *sales.Service.
type Checkouter interface {
	Checkout(ctx context.Context, doc *sales.Sale) ([]stock.BatchDeduction, error)
}

// Service provides tab operations. Closing a tab produces a sale
// through the sales service, so the deduction rules live in one place.
type Service struct {
	repo      Repository
	sales     Checkouter
	numerator numerator.Generator
	txManager tx.Manager // optional; nil means per-tenant context mode
}

// NewService creates a new tabs service.
func NewService(repo Repository, salesService Checkouter, gen numerator.Generator, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		sales:     salesService,
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

// Open creates a new tab at an outlet.
func (s *Service) Open(ctx context.Context, outletID id.ID, name string) (*Tab, error) {
	tab := New(outletID, name, appctx.GetUserID(ctx))

	if err := tab.Validate(ctx); err != nil {
		return nil, err
	}

	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("TAB"),
		&numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate number: %w", err)
	}
	tab.Number = number

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, tab)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "tab opened", "id", tab.ID, "number", tab.Number, "name", tab.Name)
	return tab, nil
}

// AddItems merges items into an open tab. The tab row is locked so two
// waiters adding at once cannot lose lines.
func (s *Service) AddItems(ctx context.Context, tabID id.ID, items []Item) (*Tab, error) {
	if len(items) == 0 {
		return nil, apperror.NewValidation("no items to add").WithDetail("field", "items")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var tab *Tab
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		tab, err = s.repo.GetForUpdate(ctx, tabID)
		if err != nil {
			return err
		}

		if !tab.IsOpen() {
			return apperror.NewTabClosed(tab.Number)
		}

		lines, err := s.repo.GetLines(ctx, tabID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		tab.Lines = lines

		for _, item := range items {
			if id.IsZero(item.ProductID) || item.Quantity <= 0 {
				return apperror.NewValidation("invalid item").WithDetail("field", "items")
			}
			tab.AddItem(item.ProductID, item.Quantity, item.UnitPrice)
		}

		if err := s.repo.SaveLines(ctx, tabID, tab.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return s.repo.Update(ctx, tab)
	})
	if err != nil {
		return nil, err
	}

	return tab, nil
}

// Close settles the tab: it becomes a completed sale (payment method
// "tab" unless overridden), stock is deducted per line, and the tab is
// marked settled. All in one transaction.
func (s *Service) Close(ctx context.Context, tabID id.ID, method sales.PaymentMethod) (*sales.Sale, error) {
	if method == "" {
		method = sales.PaymentTab
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var sale *sales.Sale
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		tab, err := s.repo.GetForUpdate(ctx, tabID)
		if err != nil {
			return err
		}

		if !tab.IsOpen() {
			return apperror.NewTabClosed(tab.Number)
		}

		lines, err := s.repo.GetLines(ctx, tabID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		tab.Lines = lines

		if len(tab.Lines) == 0 {
			return apperror.NewValidation("cannot close an empty tab").
				WithDetail("tab", tab.Number)
		}

		sale = sales.New(tab.OutletID, appctx.GetUserID(ctx), method)
		sale.TabID = &tab.ID
		sale.Comment = fmt.Sprintf("settles tab %s", tab.Number)
		for _, line := range tab.Lines {
			sale.AddLine(line.ProductID, line.Quantity, line.UnitPrice)
		}

		if _, err := s.sales.Checkout(ctx, sale); err != nil {
			return err
		}

		tab.SaleID = &sale.ID
		tab.MarkCompleted()
		return s.repo.Update(ctx, tab)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "tab settled", "tabId", tabID, "saleNumber", sale.Number)
	return sale, nil
}

// Cancel voids an open tab without a sale (walked out, opened by
// mistake). Nothing was deducted, so nothing is returned to stock.
func (s *Service) Cancel(ctx context.Context, tabID id.ID) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		tab, err := s.repo.GetForUpdate(ctx, tabID)
		if err != nil {
			return err
		}

		if !tab.IsOpen() {
			return apperror.NewTabClosed(tab.Number)
		}

		tab.MarkVoided()
		return s.repo.Update(ctx, tab)
	})
}

// GetByID retrieves a tab with lines.
func (s *Service) GetByID(ctx context.Context, tabID id.ID) (*Tab, error) {
	tab, err := s.repo.GetByID(ctx, tabID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, tabID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	tab.Lines = lines

	return tab, nil
}

// List retrieves tabs with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Tab], error) {
	return s.repo.List(ctx, filter)
}
