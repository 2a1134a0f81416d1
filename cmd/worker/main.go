// Package main is the entry point for the Tillpoint background worker.
// Multi-tenant architecture: processes jobs for all tenants.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tillpoint/internal/core/tenant"
	"tillpoint/internal/domain/stock"
	"tillpoint/internal/infrastructure/storage/postgres"
	"tillpoint/internal/infrastructure/storage/postgres/stock_repo"
	"tillpoint/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting tillpoint multi-tenant worker")

	// Connect to meta-database
	meta, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("META_DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to meta database", "error", err)
	}
	defer meta.Close()

	// Create tenant registry and manager
	registry := tenant.NewPostgresRegistry(meta.Unwrap())

	managerCfg := tenant.DefaultManagerConfig()
	managerCfg.DBUser = mustEnv("TENANT_DB_USER")
	managerCfg.DBPassword = mustEnv("TENANT_DB_PASSWORD")
	managerCfg.PoolIdleTimeout = 10 * time.Minute // Shorter for worker

	manager := tenant.NewManager(managerCfg, registry, log)
	defer manager.Close()

	// Start multi-tenant worker
	worker := NewMultiTenantWorker(manager, log, WorkerConfig{
		SweepInterval:   getEnvDuration("EXPIRY_SWEEP_INTERVAL", 1*time.Hour),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 1*time.Hour),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// WorkerConfig controls per-tenant job schedules.
type WorkerConfig struct {
	SweepInterval   time.Duration
	CleanupInterval time.Duration
}

// MultiTenantWorker processes background jobs for all tenants.
type MultiTenantWorker struct {
	manager *tenant.Manager
	log     *logger.Logger
	cfg     WorkerConfig
}

func NewMultiTenantWorker(manager *tenant.Manager, log *logger.Logger, cfg WorkerConfig) *MultiTenantWorker {
	return &MultiTenantWorker{
		manager: manager,
		log:     log.WithComponent("worker"),
		cfg:     cfg,
	}
}

// Run starts worker goroutines for all active tenants.
func (w *MultiTenantWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	var wg sync.WaitGroup
	tenantContexts := make(map[string]context.CancelFunc) // tenant_id(UUID) -> cancel
	var mu sync.Mutex

	// Initial start
	w.refreshTenants(ctx, &wg, tenantContexts, &mu)

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			for _, cancel := range tenantContexts {
				cancel()
			}
			mu.Unlock()
			wg.Wait()
			return

		case <-ticker.C:
			w.refreshTenants(ctx, &wg, tenantContexts, &mu)
		}
	}
}

func (w *MultiTenantWorker) refreshTenants(ctx context.Context, wg *sync.WaitGroup, tenantContexts map[string]context.CancelFunc, mu *sync.Mutex) {
	tenants, err := w.manager.GetActiveTenants(ctx)
	if err != nil {
		w.log.Errorw("failed to get active tenants", "error", err)
		return
	}

	activeTenants := make(map[string]*tenant.Tenant, len(tenants))
	for _, t := range tenants {
		activeTenants[t.ID] = t
	}

	mu.Lock()
	defer mu.Unlock()

	for tenantID, cancel := range tenantContexts {
		if _, active := activeTenants[tenantID]; !active {
			cancel()
			delete(tenantContexts, tenantID)
			w.log.Infow("stopped worker for inactive tenant", "tenant_id", tenantID)
		}
	}

	for _, t := range tenants {
		if _, exists := tenantContexts[t.ID]; !exists {
			tenantCtx, tenantCancel := context.WithCancel(ctx)
			tenantContexts[t.ID] = tenantCancel

			wg.Add(1)
			go func(t *tenant.Tenant) {
				defer wg.Done()
				w.runTenantWorker(tenantCtx, t)
			}(t)

			w.log.Infow("started worker for tenant", "tenant_id", t.ID)
		}
	}
}

func (w *MultiTenantWorker) runTenantWorker(ctx context.Context, t *tenant.Tenant) {
	mp, err := w.manager.GetPool(ctx, t.ID)
	if err != nil {
		w.log.Errorw("failed to get pool for tenant", "tenant_id", t.ID, "error", err)
		return
	}

	txManager := postgres.NewTxManagerFromRawPool(mp.Pool())

	// Used by the worker: stock service with an explicit TxManager, since
	// there is no HTTP request context to inherit one from.
	stockService := stock.NewServiceWithTx(stock_repo.NewStockRepo(), txManager)

	// Domain repositories still read the pool from context.
	jobCtx := tenant.WithPool(ctx, mp.Pool())
	jobCtx = tenant.WithTxManager(jobCtx, txManager)
	jobCtx = tenant.WithTenant(jobCtx, t)

	sweepTicker := time.NewTicker(w.cfg.SweepInterval)
	defer sweepTicker.Stop()

	cleanupTicker := time.NewTicker(w.cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	// Run one sweep immediately so a freshly started worker does not leave
	// expired batches sellable for up to a full interval.
	w.sweepExpiredBatches(jobCtx, stockService, t.ID)

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("stopping worker for tenant", "tenant_id", t.ID)
			return
		case <-sweepTicker.C:
			w.sweepExpiredBatches(jobCtx, stockService, t.ID)
		case <-cleanupTicker.C:
			w.cleanupSessions(ctx, mp.Pool(), t.ID)
			w.cleanupIdempotency(ctx, mp.Pool(), t.ID)
		}
	}
}

func (w *MultiTenantWorker) sweepExpiredBatches(ctx context.Context, svc *stock.Service, tenantID string) {
	written, err := svc.MarkExpiredBatches(ctx, stock.SweepFilter{})
	if err != nil {
		w.log.Errorw("expiry sweep failed", "tenant_id", tenantID, "error", err)
		return
	}

	if written > 0 {
		w.log.Infow("expiry sweep wrote off batches", "tenant_id", tenantID, "count", written)
	}
}

func (w *MultiTenantWorker) cleanupSessions(ctx context.Context, pool *pgxpool.Pool, tenantID string) {
	result, err := pool.Exec(ctx, `
		DELETE FROM sys_refresh_tokens
		WHERE expires_at < NOW() OR revoked_at IS NOT NULL
	`)
	if err != nil {
		w.log.Errorw("session cleanup failed", "tenant_id", tenantID, "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		w.log.Infow("cleaned up expired sessions", "tenant_id", tenantID, "count", result.RowsAffected())
	}
}

func (w *MultiTenantWorker) cleanupIdempotency(ctx context.Context, pool *pgxpool.Pool, tenantID string) {
	result, err := pool.Exec(ctx, `
		DELETE FROM sys_idempotency
		WHERE expires_at < NOW()
	`)
	if err != nil {
		w.log.Errorw("idempotency cleanup failed", "tenant_id", tenantID, "error", err)
		return
	}

	if result.RowsAffected() > 0 {
		w.log.Infow("cleaned up idempotency keys", "tenant_id", tenantID, "count", result.RowsAffected())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
