package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/entity"
	"tillpoint/internal/core/id"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/receiving"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// DeliveryHandler handles HTTP requests for Delivery documents.
type DeliveryHandler struct {
	*BaseHandler
	service *receiving.Service
}

// NewDeliveryHandler creates a new delivery handler.
func NewDeliveryHandler(base *BaseHandler, service *receiving.Service) *DeliveryHandler {
	return &DeliveryHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /deliveries - save a draft delivery.
func (h *DeliveryHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromDelivery(doc)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// Receive handles POST /deliveries/receive - one-step goods receipt.
// Builds the delivery from the request and books every line into stock
// in a single transaction.
func (h *DeliveryHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Receive(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromDelivery(doc)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// ReceiveDraft handles POST /deliveries/:id/receive - book a saved draft.
func (h *DeliveryHandler) ReceiveDraft(c *gin.Context) {
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

	if err := h.service.Receive(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromDelivery(doc)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Get handles GET /deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
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

	c.JSON(http.StatusOK, dto.FromDelivery(doc))
}

// Update handles PUT /deliveries/:id - edit a draft delivery.
func (h *DeliveryHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	doc, err := h.service.GetByID(ctx, docID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := req.ApplyTo(doc); err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Update(ctx, doc); err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromDelivery(doc)
	h.CompleteIdempotency(c, http.StatusOK, "application/json", response)
	c.JSON(http.StatusOK, response)
}

// Delete handles DELETE /deliveries/:id - remove a draft delivery.
func (h *DeliveryHandler) Delete(c *gin.Context) {
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

// List handles GET /deliveries - list with filtering.
func (h *DeliveryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	filter := receiving.ListFilter{
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

	if supplierID := c.Query("supplierId"); supplierID != "" {
		parsed, err := id.Parse(supplierID)
		if err == nil {
			filter.SupplierID = &parsed
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

	items := make([]*dto.DeliveryResponse, len(result.Items))
	for i, doc := range result.Items {
		items[i] = dto.FromDelivery(doc)
	}

	c.JSON(http.StatusOK, dto.ListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// RegisterRoutes registers delivery routes.
func (h *DeliveryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.POST("/receive", h.Receive)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/receive", h.ReceiveDraft)
}
