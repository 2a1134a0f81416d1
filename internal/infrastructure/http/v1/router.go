package v1

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/numerator"
	"tillpoint/internal/core/tenant"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/audit"
	"tillpoint/internal/domain/auth"
	"tillpoint/internal/domain/catalogs/outlet"
	"tillpoint/internal/domain/catalogs/product"
	"tillpoint/internal/domain/catalogs/supplier"
	"tillpoint/internal/domain/receiving"
	"tillpoint/internal/domain/sales"
	"tillpoint/internal/domain/stock"
	"tillpoint/internal/domain/stocktake"
	"tillpoint/internal/domain/tabs"
	"tillpoint/internal/infrastructure/http/v1/handlers"
	"tillpoint/internal/infrastructure/http/v1/middleware"
	"tillpoint/internal/infrastructure/storage/postgres"
	"tillpoint/internal/infrastructure/storage/postgres/catalog_repo"
	"tillpoint/internal/infrastructure/storage/postgres/document_repo"
	"tillpoint/internal/infrastructure/storage/postgres/stock_repo"
	"tillpoint/pkg/logger"
)

// RouterConfig holds router configuration for multi-tenant architecture.
type RouterConfig struct {
	// TenantManager manages database connections for all tenants
	TenantManager *tenant.Manager

	// MetaPool is connection to meta-database (for health checks)
	MetaPool *pgxpool.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints
	AuthService *auth.Service

	// Numerator for document number generation
	Numerator numerator.Generator

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool
}

// NewRouter creates and configures the Gin router for multi-tenant architecture.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.MetaPool, cfg.TenantManager)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
		health.GET("/tenants", healthHandler.TenantsStats)
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Auth routes - need TenantDB middleware BEFORE auth
		registerAuthRoutes(v1, cfg)

		// Protected endpoints - TenantDB runs first, then Auth
		protected := v1.Group("")
		protected.Use(middleware.TenantDB(cfg.TenantManager)) // 1. Resolve tenant, get DB pool
		protected.Use(middleware.Auth(cfg.JWTValidator))      // 2. Validate JWT, add user to context

		// Idempotency for mutating operations. The store resolves the
		// tenant's TxManager from the request context, so one instance
		// serves every tenant.
		if cfg.IdempotencyEnabled {
			store := postgres.NewIdempotencyStore(nil, postgres.IdempotencyConfig{})
			protected.Use(middleware.Idempotency(store))
		}

		registerCatalogRoutes(protected, cfg)
		registerStockRoutes(protected)
		registerDocumentRoutes(protected, cfg)
	}

	return router
}

// registerAuthRoutes registers authentication endpoints.
func registerAuthRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.AuthService == nil {
		return
	}

	baseHandler := handlers.NewBaseHandler()
	authHandler := handlers.NewAuthHandler(baseHandler, cfg.AuthService)

	// Public auth endpoints (no JWT required, but need tenant for DB access)
	publicAuth := rg.Group("/auth")
	publicAuth.Use(middleware.TenantDB(cfg.TenantManager))

	// Protected auth endpoints (JWT required)
	protectedAuth := rg.Group("/auth")
	protectedAuth.Use(middleware.TenantDB(cfg.TenantManager))
	protectedAuth.Use(middleware.Auth(cfg.JWTValidator))

	authHandler.RegisterRoutes(publicAuth, protectedAuth)
}

// registerCatalogRoutes registers reference data endpoints.
// Any authenticated user can read catalogs; writes need a manager.
func registerCatalogRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	catalogs := rg.Group("/catalog")
	baseHandler := handlers.NewBaseHandler()

	// Note: repos and services are created once, TxManager comes from context per-request

	// --- PRODUCTS ---
	{
		repo := catalog_repo.NewProductRepo()
		service := product.NewService(repo, cfg.Numerator)
		handler := handlers.NewProductHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/products"), handler, appctx.RoleManager)
	}

	// --- OUTLETS ---
	{
		repo := catalog_repo.NewOutletRepo()
		service := outlet.NewService(repo, cfg.Numerator)
		handler := handlers.NewOutletHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/outlets"), handler, appctx.RoleManager)
	}

	// --- SUPPLIERS ---
	{
		repo := catalog_repo.NewSupplierRepo()
		service := supplier.NewService(repo, cfg.Numerator)
		handler := handlers.NewSupplierHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/suppliers"), handler, appctx.RoleManager)
	}
}

// registerStockRoutes registers batch stock endpoints.
func registerStockRoutes(rg *gin.RouterGroup) {
	baseHandler := handlers.NewBaseHandler()

	stockService := stock.NewService(stock_repo.NewStockRepo())
	stockHandler := handlers.NewStockHandler(baseHandler, stockService)

	stockHandler.RegisterRoutes(rg.Group("/stock"), middleware.RequireRole(appctx.RoleManager))
}

// registerDocumentRoutes registers document endpoints.
func registerDocumentRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()
	manager := middleware.RequireRole(appctx.RoleManager)

	// One stock engine serves every document type; documents join its
	// transactions when they finalize.
	stockService := stock.NewService(stock_repo.NewStockRepo())

	// Audit trail resolves its TxManager from the request context, same
	// as the repositories.
	auditService, err := postgres.NewAuditService(nil)
	if err != nil {
		panic(fmt.Sprintf("create audit service: %v", err))
	}

	// --- SALES ---
	saleService := sales.NewService(document_repo.NewSaleRepo(), stockService, cfg.Numerator, nil)

	saleService.Hooks().On(domain.BeforeCreate, func(ctx context.Context, doc *sales.Sale) error {
		audit.EnrichCreatedBy(ctx, &doc.CreatedBy, &doc.UpdatedBy)
		return nil
	})

	saleService.Hooks().On(domain.AfterCreate, func(ctx context.Context, doc *sales.Sale) error {
		return auditService.LogChange(ctx, "sale", doc.ID, postgres.AuditActionCreate, map[string]any{
			"number":      doc.Number,
			"status":      doc.Status,
			"totalAmount": doc.TotalAmount,
		})
	})

	saleHandler := handlers.NewSaleHandler(baseHandler, saleService, auditService)
	saleHandler.RegisterRoutes(rg.Group("/sales"), manager)

	// --- TABS ---
	{
		service := tabs.NewService(document_repo.NewTabRepo(), saleService, cfg.Numerator, nil)
		handler := handlers.NewTabHandler(baseHandler, service)
		handler.RegisterRoutes(rg.Group("/tabs"))
	}

	// --- DELIVERIES ---
	{
		service := receiving.NewService(document_repo.NewDeliveryRepo(), stockService, cfg.Numerator, nil)
		handler := handlers.NewDeliveryHandler(baseHandler, service)

		// Goods receiving is back-office work
		deliveries := rg.Group("/deliveries")
		deliveries.Use(manager)
		handler.RegisterRoutes(deliveries)
	}

	// --- STOCK TAKES ---
	{
		service := stocktake.NewService(document_repo.NewStockTakeRepo(), stockService, cfg.Numerator, nil)
		handler := handlers.NewStockTakeHandler(baseHandler, service)

		// Anyone can count; completing writes adjustments, so it
		// stays with managers.
		handler.RegisterRoutes(rg.Group("/stock-takes"), manager)
	}
}
