package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/tabs"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// TabHandler handles HTTP requests for bar tabs.
type TabHandler struct {
	*BaseHandler
	service *tabs.Service
}

// NewTabHandler creates a new tab handler.
func NewTabHandler(base *BaseHandler, service *tabs.Service) *TabHandler {
	return &TabHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Open handles POST /tabs - open a named tab at an outlet.
func (h *TabHandler) Open(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.OpenTabRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outletID, err := id.Parse(req.OutletID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid outletId format"))
		return
	}

	tab, err := h.service.Open(ctx, outletID, req.Name)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromTab(tab)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// AddItems handles POST /tabs/:id/items - append orders to an open tab.
func (h *TabHandler) AddItems(c *gin.Context) {
	ctx := c.Request.Context()

	tabID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.AddTabItemsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	items, err := req.ToItems()
	if err != nil {
		h.Error(c, err)
		return
	}

	tab, err := h.service.AddItems(ctx, tabID, items)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromTab(tab)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Close handles POST /tabs/:id/close - settle the tab into a sale.
// Stock is deducted here, not when items were ordered.
func (h *TabHandler) Close(c *gin.Context) {
	ctx := c.Request.Context()

	tabID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.CloseTabRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.service.Close(ctx, tabID, req.PaymentMethod)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromSale(sale)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Cancel handles POST /tabs/:id/cancel - void an open tab.
func (h *TabHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()

	tabID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Cancel(ctx, tabID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "tab cancelled")
}

// Get handles GET /tabs/:id
func (h *TabHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	tabID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	tab, err := h.service.GetByID(ctx, tabID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromTab(tab))
}

// List handles GET /tabs - list with filtering.
func (h *TabHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := tabs.ListFilter{
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

	if openedBy := c.Query("openedBy"); openedBy != "" {
		filter.OpenedBy = &openedBy
	}

	if status := c.Query("status"); status != "" {
		st := entity.DocStatus(status)
		filter.Status = &st
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

	items := make([]*dto.TabResponse, len(result.Items))
	for i, tab := range result.Items {
		items[i] = dto.FromTab(tab)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// RegisterRoutes registers tab routes.
func (h *TabHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Open)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/items", h.AddItems)
	rg.POST("/:id/close", h.Close)
	rg.POST("/:id/cancel", h.Cancel)
}
