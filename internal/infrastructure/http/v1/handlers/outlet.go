package handlers

import (
	"tillpoint/internal/domain/catalogs/outlet"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// OutletHTTPHandler is the catalog handler specialized for outlets.
type OutletHTTPHandler = CatalogHandler[
	*outlet.Outlet,
	dto.CreateOutletRequest,
	dto.UpdateOutletRequest,
]

// NewOutletHandler configures the generic catalog handler for outlets.
func NewOutletHandler(
	base *BaseHandler,
	service *outlet.Service,
) *OutletHTTPHandler {

	config := CatalogHandlerConfig[
		*outlet.Outlet,
		dto.CreateOutletRequest,
		dto.UpdateOutletRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "outlet",

		MapCreateDTO: func(req dto.CreateOutletRequest) *outlet.Outlet {
			return req.ToEntity()
		},

		MapUpdateDTO: func(req dto.UpdateOutletRequest, existing *outlet.Outlet) *outlet.Outlet {
			req.ApplyTo(existing)
			return existing
		},

		MapToDTO: func(entity *outlet.Outlet) any {
			return dto.FromOutlet(entity)
		},
	}

	return NewCatalogHandler(base, config)
}
