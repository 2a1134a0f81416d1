package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stocktake"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// StockTakeHandler handles HTTP requests for stock take documents.
type StockTakeHandler struct {
	*BaseHandler
	service *stocktake.Service
}

// NewStockTakeHandler creates a new stock take handler.
func NewStockTakeHandler(base *BaseHandler, service *stocktake.Service) *StockTakeHandler {
	return &StockTakeHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Start handles POST /stock-takes - snapshot expected quantities for
// the selected products and open a draft count.
func (h *StockTakeHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.StartStockTakeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outletID, err := id.Parse(req.OutletID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid outletId format"))
		return
	}

	productIDs, err := req.ParseProductIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.Start(ctx, outletID, productIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromStockTake(doc)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// RecordCounts handles POST /stock-takes/:id/counts - record physical
// counts on a draft stock take.
func (h *StockTakeHandler) RecordCounts(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.RecordCountsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	counts, err := req.ToCounts()
	if err != nil {
		h.Error(c, err)
		return
	}

	doc, err := h.service.RecordCounts(ctx, docID, counts)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromStockTake(doc)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Complete handles POST /stock-takes/:id/complete - adjust stock to the
// counted quantities and finalize the document.
func (h *StockTakeHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	doc, err := h.service.Complete(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromStockTake(doc)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Void handles POST /stock-takes/:id/void - abandon a draft count.
func (h *StockTakeHandler) Void(c *gin.Context) {
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

	h.Success(c, "stock take voided")
}

// Get handles GET /stock-takes/:id
func (h *StockTakeHandler) Get(c *gin.Context) {
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

	c.JSON(http.StatusOK, dto.FromStockTake(doc))
}

// List handles GET /stock-takes - list with filtering.
func (h *StockTakeHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := stocktake.ListFilter{
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

	items := make([]*dto.StockTakeResponse, len(result.Items))
	for i, doc := range result.Items {
		items[i] = dto.FromStockTake(doc)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// RegisterRoutes registers stock take routes. completeGuard protects
// Complete since it writes adjustments to stock.
func (h *StockTakeHandler) RegisterRoutes(rg *gin.RouterGroup, completeGuard gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.POST("", h.Start)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/counts", h.RecordCounts)
	rg.POST("/:id/complete", completeGuard, h.Complete)
	rg.POST("/:id/void", h.Void)
}
