package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tillpoint/internal/core/apperror"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain/stock"
	"tillpoint/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for batch stock.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetAvailability handles GET /stock/availability
// Sums sellable batches, the authoritative number for checkout decisions.
func (h *StockHandler) GetAvailability(c *gin.Context) {
	ctx := c.Request.Context()

	productID, outletID, ok := h.parseProductOutlet(c)
	if !ok {
		return
	}

	available, err := h.service.AvailableStock(ctx, productID, outletID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AvailabilityResponse{
		ProductID: productID.String(),
		OutletID:  outletID.String(),
		Available: available,
	})
}

// GetCachedStock handles GET /stock/cached
// Returns the denormalized per-outlet quantity; may trail batch truth briefly.
func (h *StockHandler) GetCachedStock(c *gin.Context) {
	ctx := c.Request.Context()

	productID, outletID, ok := h.parseProductOutlet(c)
	if !ok {
		return
	}

	ls, err := h.service.CachedStock(ctx, productID, outletID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromLocationStock(ls))
}

// GetBatchForSale handles GET /stock/batch-for-sale
// Returns the first batch FIFO-by-expiry would consume for the quantity.
func (h *StockHandler) GetBatchForSale(c *gin.Context) {
	ctx := c.Request.Context()

	productID, outletID, ok := h.parseProductOutlet(c)
	if !ok {
		return
	}

	quantity := types.Quantity(1)
	if qStr := c.Query("quantity"); qStr != "" {
		parsed, err := strconv.ParseInt(qStr, 10, 64)
		if err != nil || parsed <= 0 {
			h.Error(c, apperror.NewValidation("quantity must be a positive integer"))
			return
		}
		quantity = types.Quantity(parsed)
	}

	batch, err := h.service.BatchForSale(ctx, productID, outletID, quantity)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromBatch(*batch))
}

// GetOutletStock handles GET /stock/outlets/:id
func (h *StockHandler) GetOutletStock(c *gin.Context) {
	ctx := c.Request.Context()

	outletID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid outlet id format"))
		return
	}

	stocks, err := h.service.OutletStock(ctx, outletID)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.LocationStockResponse, len(stocks))
	for i, ls := range stocks {
		items[i] = dto.FromLocationStock(ls)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetMovements handles GET /stock/movements
func (h *StockHandler) GetMovements(c *gin.Context) {
	ctx := c.Request.Context()

	// Product is required for movement history
	productIDStr := c.Query("productId")
	if productIDStr == "" {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	productID, err := id.Parse(productIDStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	filter := stock.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if oStr := c.Query("outletId"); oStr != "" {
		parsed, err := id.Parse(oStr)
		if err == nil {
			filter.OutletID = &parsed
		}
	}

	if rtStr := c.Query("recordType"); rtStr != "" {
		rt := stock.RecordType(rtStr)
		filter.RecordType = &rt
	}

	if mtStr := c.Query("type"); mtStr != "" {
		mt := stock.MovementType(mtStr)
		filter.Type = &mt
	}

	// Parse optional date range
	if fromStr := c.Query("fromDate"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filter.FromDate = &parsed
		}
	}

	if toStr := c.Query("toDate"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filter.ToDate = &parsed
		}
	}

	movements, err := h.service.MovementHistory(ctx, productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockMovementResponse, len(movements))
	for i, m := range movements {
		items[i] = dto.FromStockMovement(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"items":      items,
		"totalCount": len(items),
	})
}

// GetTurnover handles GET /stock/turnover
func (h *StockHandler) GetTurnover(c *gin.Context) {
	ctx := c.Request.Context()

	// Date range is required
	fromStr := c.Query("fromDate")
	toStr := c.Query("toDate")

	if fromStr == "" || toStr == "" {
		h.Error(c, apperror.NewValidation("fromDate and toDate are required"))
		return
	}

	fromDate, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid fromDate format, expected RFC3339"))
		return
	}

	toDate, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid toDate format, expected RFC3339"))
		return
	}

	filter := stock.TurnoverFilter{
		FromDate: fromDate,
		ToDate:   toDate,
	}

	if oStr := c.Query("outletId"); oStr != "" {
		parsed, err := id.Parse(oStr)
		if err == nil {
			filter.OutletID = &parsed
		}
	}

	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err == nil {
			filter.ProductID = &parsed
		}
	}

	turnover, err := h.service.TurnoverReport(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromTurnover(turnover))
}

// GetExpiringSoon handles GET /stock/expiring
func (h *StockHandler) GetExpiringSoon(c *gin.Context) {
	ctx := c.Request.Context()

	days := h.ParseIntQuery(c, "days", 7)

	filter, ok := h.parseSweepFilter(c)
	if !ok {
		return
	}

	batches, err := h.service.ExpiringSoon(ctx, days, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BatchResponse, len(batches))
	for i, b := range batches {
		items[i] = dto.FromBatch(b)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Adjust handles POST /stock/adjust
// Sets the absolute sellable quantity after a recount.
func (h *StockHandler) Adjust(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	outletID, err := id.Parse(req.OutletID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid outletId format"))
		return
	}

	batch, err := h.service.Adjust(ctx, stock.AdjustInput{
		ProductID:   productID,
		OutletID:    outletID,
		NewQuantity: req.NewQuantity,
		Reason:      req.Reason,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	var resp any
	if batch != nil {
		resp = dto.FromBatch(*batch)
	} else {
		resp = dto.SuccessResponse{Success: true, Message: "stock adjusted"}
	}

	h.CompleteIdempotency(c, http.StatusOK, "application/json", resp)
	c.JSON(http.StatusOK, resp)
}

// SweepExpired handles POST /stock/expiry-sweep
// Writes off every batch past its expiry date.
func (h *StockHandler) SweepExpired(c *gin.Context) {
	ctx := c.Request.Context()

	filter, ok := h.parseSweepFilter(c)
	if !ok {
		return
	}

	count, err := h.service.MarkExpiredBatches(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.SweepResponse{WrittenOff: count}
	h.CompleteIdempotency(c, http.StatusOK, "application/json", resp)
	c.JSON(http.StatusOK, resp)
}

func (h *StockHandler) parseProductOutlet(c *gin.Context) (id.ID, id.ID, bool) {
	productID, err := id.Parse(c.Query("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return id.Zero(), id.Zero(), false
	}

	outletID, err := id.Parse(c.Query("outletId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid outletId format"))
		return id.Zero(), id.Zero(), false
	}

	return productID, outletID, true
}

func (h *StockHandler) parseSweepFilter(c *gin.Context) (stock.SweepFilter, bool) {
	var filter stock.SweepFilter

	if oStr := c.Query("outletId"); oStr != "" {
		parsed, err := id.Parse(oStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid outletId format"))
			return filter, false
		}
		filter.OutletID = &parsed
	}

	if pStr := c.Query("productId"); pStr != "" {
		parsed, err := id.Parse(pStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid productId format"))
			return filter, false
		}
		filter.ProductID = &parsed
	}

	return filter, true
}

// RegisterRoutes registers stock routes. Adjust and the expiry sweep
// mutate stock, so the router guards them with a role check.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup, adjustGuard gin.HandlerFunc) {
	rg.GET("/availability", h.GetAvailability)
	rg.GET("/cached", h.GetCachedStock)
	rg.GET("/batch-for-sale", h.GetBatchForSale)
	rg.GET("/outlets/:id", h.GetOutletStock)
	rg.GET("/movements", h.GetMovements)
	rg.GET("/turnover", h.GetTurnover)
	rg.GET("/expiring", h.GetExpiringSoon)
	rg.POST("/adjust", adjustGuard, h.Adjust)
	rg.POST("/expiry-sweep", adjustGuard, h.SweepExpired)
}
