package outlet

import (
	"context"
	"fmt"
	"time"

	"tillpoint/internal/core/numerator"
	"tillpoint/internal/domain"
)

// Service provides business logic for the Outlet catalog.
type Service struct {
	*domain.CatalogService[*Outlet]
	repo      Repository
	numerator numerator.Generator
}

// NewService creates a new Outlet service.
func NewService(repo Repository, gen numerator.Generator) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Outlet]{
		Repo:       repo,
		EntityName: "outlet",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      gen,
	}

	base.Hooks().On(domain.BeforeCreate, svc.prepareForCreate)
	base.Hooks().On(domain.BeforeUpdate, svc.prepareForUpdate)

	return svc
}

func (s *Service) prepareForCreate(ctx context.Context, o *Outlet) error {
	if o.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("OUT"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		o.Code = code
	}

	// Only one outlet holds the default flag.
	if o.IsDefault {
		if err := s.repo.ClearDefault(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) prepareForUpdate(ctx context.Context, o *Outlet) error {
	if o.IsDefault {
		if err := s.repo.ClearDefault(ctx); err != nil {
			return err
		}
	}
	return nil
}
