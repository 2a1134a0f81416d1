package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/infrastructure/http/v1/dto"
	"tillpoint/internal/infrastructure/storage/postgres"
)

// SaleHandler handles HTTP requests for Sale documents.
type SaleHandler struct {
	*BaseHandler
	service *sales.Service
	audit   *postgres.AuditService
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, service *sales.Service, audit *postgres.AuditService) *SaleHandler {
	return &SaleHandler{
		BaseHandler: base,
		service:     service,
		audit:       audit,
	}
}

// Create handles POST /sales - save a draft without touching stock.
func (h *SaleHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromSale(doc)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// Checkout handles POST /sales/checkout - one-step till flow.
// Builds the sale from the request and finalizes it in a single
// transaction; any line short on stock fails the whole request.
func (h *SaleHandler) Checkout(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity(h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	deductions, err := h.service.Checkout(ctx, doc)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.NewCheckoutResponse(doc, deductions)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// CheckoutDraft handles POST /sales/:id/checkout - finalize a saved draft.
func (h *SaleHandler) CheckoutDraft(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.GetByID(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	deductions, err := h.service.Checkout(ctx, doc)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.NewCheckoutResponse(doc, deductions)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Get handles GET /sales/:id
func (h *SaleHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.GetByID(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromSale(doc))
}

// List handles GET /sales - list with filtering.
func (h *SaleHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := sales.ListFilter{
		ListFilter: domain.DefaultListFilter(),
	}
	filter.Search = c.Query("search")
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)
	filter.OrderBy = c.DefaultQuery("orderBy", "date DESC")

	if outletID := c.Query("outletId"); outletID != "" {
		parsed, err := id.Parse(outletID)
		if err == nil {
			filter.OutletID = &parsed
		}
	}

	if cashierID := c.Query("cashierId"); cashierID != "" {
		filter.CashierID = &cashierID
	}

	if status := c.Query("status"); status != "" {
		st := entity.DocStatus(status)
		filter.Status = &st
	}

	if method := c.Query("paymentMethod"); method != "" {
		pm := sales.PaymentMethod(method)
		filter.PaymentMethod = &pm
	}

	if dateFrom := c.Query("dateFrom"); dateFrom != "" {
		if parsed, err := time.Parse(time.RFC3339, dateFrom); err == nil {
			filter.DateFrom = &parsed
		}
	}

	if dateTo := c.Query("dateTo"); dateTo != "" {
		if parsed, err := time.Parse(time.RFC3339, dateTo); err == nil {
			filter.DateTo = &parsed
		}
	}

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]*dto.SaleResponse, len(result.Items))
	for i, doc := range result.Items {
		items[i] = dto.FromSale(doc)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Void handles POST /sales/:id/void - cancel a draft sale.
func (h *SaleHandler) Void(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Void(ctx, docID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "sale voided")
}

// Delete handles DELETE /sales/:id - remove a draft sale.
func (h *SaleHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Delete(ctx, docID); err != nil {
		h.Error(c, err)
		return
	}

	h.NoContent(c)
}

// History handles GET /sales/:id/history - the audit trail for one sale.
func (h *SaleHandler) History(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)

	entries, err := h.audit.GetEntityHistory(ctx, "sale", docID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromAuditEntries(entries))
}

// RegisterRoutes registers sale routes. voidGuard protects Void and
// Delete; ringing up sales stays open to cashiers.
func (h *SaleHandler) RegisterRoutes(rg *gin.RouterGroup, voidGuard gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/checkout", h.Checkout)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/history", h.History)
	rg.POST("/:id/checkout", h.CheckoutDraft)
	rg.POST("/:id/void", voidGuard, h.Void)
	rg.DELETE("/:id", voidGuard, h.Delete)
}
