package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tillpoint/pkg/logger"
)

// ManagerConfig configures the per-tenant pool manager.
type ManagerConfig struct {
	// Database credentials for tenant databases
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Pool settings (per tenant)
	MaxConnsPerTenant int32
	MinConnsPerTenant int32

	// Connection settings
	ConnectTimeout time.Duration

	// Lifecycle settings
	MaxTotalPools   int           // Max simultaneous pools (0 = unlimited)
	PoolIdleTimeout time.Duration // Close pool after inactivity (0 = never)
	MaintainPeriod  time.Duration // How often to ping pools and evict idle ones
}

// DefaultManagerConfig returns production-safe defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConnsPerTenant: 10,
		MinConnsPerTenant: 2,
		ConnectTimeout:    10 * time.Second,
		MaxTotalPools:     100,
		PoolIdleTimeout:   30 * time.Minute,
		MaintainPeriod:    time.Minute,
	}
}

// ManagedPool wraps pgxpool.Pool with lifecycle tracking.
type ManagedPool struct {
	pool     *pgxpool.Pool
	tenant   *Tenant
	lastUsed atomic.Int64 // Unix timestamp
	refCount atomic.Int32 // Active requests using this pool
	// unhealthySince is set when a ping fails (unix timestamp). 0 means healthy.
	unhealthySince atomic.Int64
}

// Touch updates last used timestamp.
func (mp *ManagedPool) Touch() {
	mp.lastUsed.Store(time.Now().Unix())
}

// Pool returns the underlying pgxpool.Pool.
func (mp *ManagedPool) Pool() *pgxpool.Pool {
	return mp.pool
}

// Tenant returns tenant info.
func (mp *ManagedPool) Tenant() *Tenant {
	return mp.tenant
}

// AcquireRef increments the active request count.
func (mp *ManagedPool) AcquireRef() {
	mp.refCount.Add(1)
}

// ReleaseRef decrements the active request count.
func (mp *ManagedPool) ReleaseRef() {
	mp.refCount.Add(-1)
}

// Manager manages database connection pools for all tenants.
// Safe for concurrent use.
type Manager struct {
	config   ManagerConfig
	registry Registry

	pools     sync.Map // map[tenantID]*ManagedPool
	poolCount atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewManager creates a new multi-tenant connection manager and starts
// its maintenance loop.
func NewManager(cfg ManagerConfig, registry Registry, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		config:   cfg,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.WithComponent("tenant-manager"),
	}

	if cfg.MaintainPeriod > 0 {
		m.wg.Add(1)
		go m.maintainLoop()
	}

	m.log.Infow("tenant pool manager started",
		"max_pools", cfg.MaxTotalPools,
		"idle_timeout", cfg.PoolIdleTimeout,
		"maintain_period", cfg.MaintainPeriod,
	)

	return m
}

// GetPool returns the database pool for a tenant, creating it if needed.
func (m *Manager) GetPool(ctx context.Context, tenantID string) (*ManagedPool, error) {
	if val, ok := m.pools.Load(tenantID); ok {
		mp := val.(*ManagedPool)
		mp.Touch()
		return mp, nil
	}
	return m.createPool(ctx, tenantID)
}

func (m *Manager) createPool(ctx context.Context, tenantID string) (*ManagedPool, error) {
	if m.config.MaxTotalPools > 0 && int(m.poolCount.Load()) >= m.config.MaxTotalPools {
		return nil, fmt.Errorf("%w (%d)", ErrMaxPoolLimit, m.config.MaxTotalPools)
	}

	t, err := m.registry.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("tenant lookup failed: %w", err)
	}

	if !t.IsActive() {
		return nil, fmt.Errorf("%w: status=%s", ErrTenantNotActive, t.Status)
	}

	poolCfg, err := pgxpool.ParseConfig(t.DSN(m.config.DBUser, m.config.DBPassword, m.config.DBSSLMode))
	if err != nil {
		return nil, fmt.Errorf("parse dsn for tenant %s: %w", tenantID, err)
	}

	poolCfg.MaxConns = m.config.MaxConnsPerTenant
	poolCfg.MinConns = m.config.MinConnsPerTenant
	poolCfg.ConnConfig.ConnectTimeout = m.config.ConnectTimeout

	createCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(createCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool for tenant %s: %w", tenantID, err)
	}

	if err := pool.Ping(createCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping tenant %s: %w", tenantID, err)
	}

	mp := &ManagedPool{
		pool:   pool,
		tenant: t,
	}
	mp.Touch()

	// Another request may have created the pool concurrently; keep theirs.
	actual, loaded := m.pools.LoadOrStore(tenantID, mp)
	if loaded {
		pool.Close()
		return actual.(*ManagedPool), nil
	}

	m.poolCount.Add(1)
	m.log.Infow("created pool for tenant",
		"tenant_id", tenantID,
		"db_name", t.DBName,
		"total_pools", m.poolCount.Load(),
	)

	return mp, nil
}

// maintainLoop periodically pings pools and evicts idle or broken ones.
func (m *Manager) maintainLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.MaintainPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.maintainPools()
		}
	}
}

func (m *Manager) maintainPools() {
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	var idleBefore int64
	if m.config.PoolIdleTimeout > 0 {
		idleBefore = time.Now().Add(-m.config.PoolIdleTimeout).Unix()
	}

	m.pools.Range(func(key, value any) bool {
		tenantID := key.(string)
		mp := value.(*ManagedPool)

		if err := mp.pool.Ping(ctx); err != nil {
			if mp.unhealthySince.Load() == 0 {
				mp.unhealthySince.Store(time.Now().Unix())
			}
			m.log.Warnw("pool ping failed", "tenant_id", tenantID, "error", err)
		} else {
			mp.unhealthySince.Store(0)
		}

		// Never close pools with requests in flight.
		if mp.refCount.Load() > 0 {
			return true
		}

		switch {
		case mp.unhealthySince.Load() > 0:
			m.closePool(tenantID, mp, "unhealthy")
		case idleBefore > 0 && mp.lastUsed.Load() < idleBefore:
			m.closePool(tenantID, mp, "idle timeout")
		}
		return true
	})
}

func (m *Manager) closePool(tenantID string, mp *ManagedPool, reason string) {
	m.pools.Delete(tenantID)
	mp.pool.Close()
	m.poolCount.Add(-1)

	m.log.Infow("closed pool",
		"tenant_id", tenantID,
		"reason", reason,
		"total_pools", m.poolCount.Load(),
	)
}

// Close shuts down the manager and all pools.
func (m *Manager) Close() {
	m.log.Infow("shutting down tenant pool manager")

	m.cancel()
	m.wg.Wait()

	var closed int
	m.pools.Range(func(_, value any) bool {
		value.(*ManagedPool).pool.Close()
		closed++
		return true
	})

	m.log.Infow("tenant pool manager closed", "pools_closed", closed)
}

// Stats returns current manager statistics.
func (m *Manager) Stats() ManagerStats {
	var stats ManagerStats
	stats.TotalPools = int(m.poolCount.Load())

	m.pools.Range(func(key, value any) bool {
		mp := value.(*ManagedPool)
		ps := mp.pool.Stat()

		stats.TotalConns += int(ps.TotalConns())
		stats.IdleConns += int(ps.IdleConns())
		stats.AcquiredConns += int(ps.AcquiredConns())

		stats.Tenants = append(stats.Tenants, TenantPoolStats{
			TenantID:      key.(string),
			DBName:        mp.tenant.DBName,
			TotalConns:    int(ps.TotalConns()),
			AcquiredConns: int(ps.AcquiredConns()),
			ActiveRefs:    int(mp.refCount.Load()),
			LastUsed:      time.Unix(mp.lastUsed.Load(), 0),
		})
		return true
	})

	return stats
}

// ManagerStats contains manager runtime statistics.
type ManagerStats struct {
	TotalPools    int
	TotalConns    int
	IdleConns     int
	AcquiredConns int
	Tenants       []TenantPoolStats
}

// TenantPoolStats contains per-tenant pool statistics.
type TenantPoolStats struct {
	TenantID      string
	DBName        string
	TotalConns    int
	AcquiredConns int
	ActiveRefs    int
	LastUsed      time.Time
}

// GetActiveTenants returns all active tenants from the registry.
func (m *Manager) GetActiveTenants(ctx context.Context) ([]*Tenant, error) {
	return m.registry.ListActive(ctx)
}

// GetRegistry returns the tenant registry.
func (m *Manager) GetRegistry() Registry {
	return m.registry
}

// WarmUp creates pools for all active tenants so the first request after
// startup does not pay the connection cost.
func (m *Manager) WarmUp(ctx context.Context) error {
	tenants, err := m.registry.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	m.log.Infow("warming up pools", "tenant_count", len(tenants))

	var wg sync.WaitGroup
	errCh := make(chan error, len(tenants))

	for _, t := range tenants {
		wg.Add(1)
		go func(t *Tenant) {
			defer wg.Done()
			if _, err := m.GetPool(ctx, t.ID); err != nil {
				errCh <- fmt.Errorf("warm up %s: %w", t.Slug, err)
			}
		}(t)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		m.log.Warnw("some pools failed to warm up", "error_count", len(errs))
		return errs[0]
	}

	return nil
}
