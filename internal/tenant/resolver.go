package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"catalog-service/internal/model"
	"catalog-service/pkg/jwtutil"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Errors returned by the resolver
var (
	ErrUnauthenticated = errors.New("missing, invalid or expired token")
	ErrUnavailable     = errors.New("tenant database temporarily unavailable")
)

// TokenVerifier validates an access token and returns its claims
type TokenVerifier interface {
	Verify(token string) (*jwtutil.Claims, error)
}

// DirectoryLookup resolves a tenant id to its active record
type DirectoryLookup interface {
	Lookup(ctx context.Context, tenantID uuid.UUID) (*model.Company, error)
}

// RequestContext is the request-scoped routing context: verified identity,
// resolved tenant and bound connection. It is created by Resolve, never
// mutated afterwards, never shared across requests, and must be closed when
// the request ends.
type RequestContext struct {
	UserID  uuid.UUID
	Email   string
	Role    string
	Company *model.Company

	handle *Handle
	data   *DataAccess
	pool   *Pool

	closeOnce sync.Once
}

// Data returns the routed data access capability
func (rc *RequestContext) Data() *DataAccess {
	return rc.data
}

// HasTenant reports whether the request is bound to a tenant database
func (rc *RequestContext) HasTenant() bool {
	return rc.handle != nil
}

// TenantID returns the resolved tenant id, or uuid.Nil for shared-only
// requests
func (rc *RequestContext) TenantID() uuid.UUID {
	if rc.handle == nil {
		return uuid.Nil
	}
	return rc.handle.TenantID()
}

// Close releases the bound connection. Safe to call more than once; exactly
// one release reaches the pool.
func (rc *RequestContext) Close() {
	rc.closeOnce.Do(func() {
		if rc.handle != nil {
			rc.pool.Release(rc.handle)
		}
	})
}

// Resolver walks a request from bearer token to bound connection:
// verify token, look up the tenant, acquire a pooled handle. Any failed
// step rejects the request; nothing downstream runs without a fully bound
// routing context.
type Resolver struct {
	tokens TokenVerifier
	dir    DirectoryLookup
	pool   *Pool
	shared *gorm.DB
	log    *zap.Logger
}

// NewResolver creates a resolver
func NewResolver(tokens TokenVerifier, dir DirectoryLookup, pool *Pool, shared *gorm.DB, log *zap.Logger) *Resolver {
	return &Resolver{tokens: tokens, dir: dir, pool: pool, shared: shared, log: log}
}

// Resolve authenticates the bearer token and binds a routing context.
// Tokens without a tenant claim resolve to the shared database; that is a
// distinct routing target, not an error. The tenant's active flag is
// checked on every call, so a deactivation takes effect on the very next
// request.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*RequestContext, error) {
	claims, err := r.tokens.Verify(bearer)
	if err != nil {
		prometheus.RecordResolution("unauthenticated")
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		prometheus.RecordResolution("unauthenticated")
		return nil, fmt.Errorf("%w: bad subject claim", ErrUnauthenticated)
	}

	rc := &RequestContext{
		UserID: userID,
		Email:  claims.Email,
		Role:   claims.Role,
	}

	if claims.TenantID == "" {
		// Platform-level request: shared database only
		rc.data = NewDataAccess(nil, r.shared)
		prometheus.RecordResolution("shared")
		return rc, nil
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		prometheus.RecordResolution("unknown_tenant")
		return nil, ErrUnknownTenant
	}

	company, err := r.dir.Lookup(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrUnknownTenant) {
			prometheus.RecordResolution("unknown_tenant")
			r.log.Warn("Token references unknown or inactive tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.String("user_id", userID.String()))
			return nil, ErrUnknownTenant
		}
		prometheus.RecordResolution("unavailable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	handle, err := r.pool.Acquire(ctx, company.ID, company.DBName)
	if err != nil {
		prometheus.RecordResolution("unavailable")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rc.Company = company
	rc.handle = handle
	rc.pool = r.pool
	rc.data = NewDataAccess(handle.DB(), r.shared)
	prometheus.RecordResolution("tenant")
	return rc, nil
}
