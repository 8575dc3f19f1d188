package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalog-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// Errors returned by the connection pool
var (
	ErrPoolExhausted       = errors.New("tenant pool exhausted, try again later")
	ErrTenantUnprovisioned = errors.New("tenant database could not be opened")
	ErrPoolClosed          = errors.New("connection pool is shut down")
)

// Opener opens a gorm handle to the named tenant database. The production
// opener dials postgres; tests inject their own.
type Opener func(dbName string) (*gorm.DB, error)

// PoolConfig bounds per-tenant resource usage
type PoolConfig struct {
	// Maximum concurrent handles per tenant
	MaxConnsPerTenant int64
	// How long Acquire blocks when the tenant's bound is reached
	AcquireTimeout time.Duration
	// Pools untouched for this long have their connection closed
	IdleEviction time.Duration
}

// Pool manages one lazily created connection pool per tenant. Pools are
// keyed strictly by tenant id: a handle acquired for one tenant can never
// be returned for another.
type Pool struct {
	mu     sync.RWMutex
	pools  map[uuid.UUID]*tenantPool
	opener Opener
	cfg    PoolConfig
	log    *zap.Logger
	closed bool

	stopEvict chan struct{}
	evictOnce sync.Once
}

type tenantPool struct {
	tenantID uuid.UUID
	dbName   string
	sem      *semaphore.Weighted

	mu       sync.Mutex
	db       *gorm.DB
	inUse    int
	lastUsed time.Time
}

// Handle is a connection bound to exactly one tenant's database for the
// duration of one request. Release returns it; releasing twice is safe.
type Handle struct {
	tenantID uuid.UUID
	db       *gorm.DB
	pool     *tenantPool

	releaseOnce sync.Once
}

// TenantID returns the tenant this handle is bound to
func (h *Handle) TenantID() uuid.UUID {
	return h.tenantID
}

// DB returns the tenant database connection
func (h *Handle) DB() *gorm.DB {
	return h.db
}

// NewPool creates a connection pool with the given opener and bounds
func NewPool(opener Opener, cfg PoolConfig, log *zap.Logger) *Pool {
	if cfg.MaxConnsPerTenant <= 0 {
		cfg.MaxConnsPerTenant = 8
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 3 * time.Second
	}
	return &Pool{
		pools:     make(map[uuid.UUID]*tenantPool),
		opener:    opener,
		cfg:       cfg,
		log:       log,
		stopEvict: make(chan struct{}),
	}
}

// Acquire returns a handle bound to the tenant's database, creating the
// tenant's pool on first access. Creation is safe under concurrent first
// access: exactly one pool exists per tenant, late callers share it.
func (p *Pool) Acquire(ctx context.Context, tenantID uuid.UUID, dbName string) (*Handle, error) {
	start := time.Now()

	tp, err := p.tenantPool(tenantID, dbName)
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	if err := tp.sem.Acquire(acquireCtx, 1); err != nil {
		p.log.Warn("Tenant pool acquisition timed out",
			zap.String("tenant_id", tenantID.String()),
			zap.Duration("timeout", p.cfg.AcquireTimeout))
		return nil, ErrPoolExhausted
	}

	tp.mu.Lock()
	if tp.db == nil {
		db, err := p.opener(dbName)
		if err != nil {
			tp.mu.Unlock()
			tp.sem.Release(1)
			p.log.Error("Failed to open tenant database",
				zap.String("tenant_id", tenantID.String()),
				zap.String("db_name", dbName),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrTenantUnprovisioned, err)
		}
		tp.db = db
		prometheus.TenantPoolsGauge.Inc()
	}
	tp.inUse++
	tp.lastUsed = time.Now()
	db := tp.db
	tp.mu.Unlock()

	prometheus.PoolHandlesInUseGauge.Inc()
	prometheus.PoolAcquireDuration.Observe(time.Since(start).Seconds())

	return &Handle{tenantID: tenantID, db: db, pool: tp}, nil
}

// Release returns the handle to its tenant pool. Exactly one release takes
// effect no matter how many times it is called.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	h.releaseOnce.Do(func() {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()

		h.pool.mu.Lock()
		h.pool.inUse--
		h.pool.lastUsed = time.Now()
		// A shut-down pool defers closing to the last release
		if closed && h.pool.inUse == 0 && h.pool.db != nil {
			p.closeLocked(h.pool)
		}
		h.pool.mu.Unlock()

		h.pool.sem.Release(1)
		prometheus.PoolHandlesInUseGauge.Dec()
	})
}

// tenantPool returns the pool for the tenant, creating it under lock on
// first access. The read-locked fast path keeps the hot request path cheap.
func (p *Pool) tenantPool(tenantID uuid.UUID, dbName string) (*tenantPool, error) {
	p.mu.RLock()
	tp, ok := p.pools[tenantID]
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}
	if ok {
		return tp, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	// Re-check under the write lock: another request may have created it
	if tp, ok := p.pools[tenantID]; ok {
		return tp, nil
	}

	tp = &tenantPool{
		tenantID: tenantID,
		dbName:   dbName,
		sem:      semaphore.NewWeighted(p.cfg.MaxConnsPerTenant),
		lastUsed: time.Now(),
	}
	p.pools[tenantID] = tp
	p.log.Info("Created tenant pool",
		zap.String("tenant_id", tenantID.String()),
		zap.String("db_name", dbName))
	return tp, nil
}

// StartEviction launches the background loop that closes connections of
// pools idle beyond the configured interval. Tenant count is unbounded, so
// open descriptors must not grow with it.
func (p *Pool) StartEviction() {
	if p.cfg.IdleEviction <= 0 {
		return
	}
	go func() {
		interval := p.cfg.IdleEviction / 2
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.evictIdle(time.Now())
			case <-p.stopEvict:
				return
			}
		}
	}()
}

// evictIdle closes the connection of every pool with no handles out that
// has been idle past the interval. The pool entry itself stays; the next
// acquisition reopens the connection transparently.
func (p *Pool) evictIdle(now time.Time) {
	p.mu.RLock()
	pools := make([]*tenantPool, 0, len(p.pools))
	for _, tp := range p.pools {
		pools = append(pools, tp)
	}
	p.mu.RUnlock()

	for _, tp := range pools {
		tp.mu.Lock()
		if tp.db != nil && tp.inUse == 0 && now.Sub(tp.lastUsed) >= p.cfg.IdleEviction {
			p.closeLocked(tp)
			p.log.Info("Evicted idle tenant pool",
				zap.String("tenant_id", tp.tenantID.String()))
		}
		tp.mu.Unlock()
	}
}

// Shutdown stops eviction and closes every open connection. In-flight
// handles keep working until released; new acquisitions fail.
func (p *Pool) Shutdown() {
	p.evictOnce.Do(func() { close(p.stopEvict) })

	p.mu.Lock()
	p.closed = true
	pools := make([]*tenantPool, 0, len(p.pools))
	for _, tp := range p.pools {
		pools = append(pools, tp)
	}
	p.mu.Unlock()

	for _, tp := range pools {
		tp.mu.Lock()
		// Pools with handles out close on their last release instead
		if tp.db != nil && tp.inUse == 0 {
			p.closeLocked(tp)
		}
		tp.mu.Unlock()
	}
}

func (p *Pool) closeLocked(tp *tenantPool) {
	if sqlDB, err := tp.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			p.log.Warn("Failed to close tenant connection",
				zap.String("tenant_id", tp.tenantID.String()),
				zap.Error(err))
		}
	}
	tp.db = nil
	prometheus.TenantPoolsGauge.Dec()
}
