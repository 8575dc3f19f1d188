package tenant

import (
	"context"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/model"
	"catalog-service/pkg/jwtutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// mapVerifier resolves tokens from a fixed table
type mapVerifier struct {
	claims map[string]*jwtutil.Claims
}

func (v *mapVerifier) Verify(token string) (*jwtutil.Claims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, ErrUnauthenticated
}

// mapDirectory serves tenant records from memory, honoring the active flag
type mapDirectory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*model.Company
}

func (d *mapDirectory) Lookup(ctx context.Context, tenantID uuid.UUID) (*model.Company, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.records[tenantID]
	if !ok || !c.Active {
		return nil, ErrUnknownTenant
	}
	return c, nil
}

func (d *mapDirectory) deactivate(tenantID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.records[tenantID]; ok {
		c.Active = false
	}
}

func accessClaims(userID uuid.UUID, tenantID string, role string) *jwtutil.Claims {
	return &jwtutil.Claims{
		Email:     "user@example.com",
		TenantID:  tenantID,
		Role:      role,
		TokenType: jwtutil.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
	}
}

func newTestResolver(t *testing.T, verifier TokenVerifier, dir DirectoryLookup, poolCfg PoolConfig) (*Resolver, *countingOpener, *gorm.DB) {
	t.Helper()
	opener := newCountingOpener()
	pool := newTestPool(t, opener.open, poolCfg)
	shared := &gorm.DB{}
	return NewResolver(verifier, dir, pool, shared, zap.NewNop()), opener, shared
}

func TestResolveBindsMatchingTenant(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"good-token": accessClaims(userID, tenantID.String(), model.RoleAdmin),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{
		tenantID: {ID: tenantID, Slug: "acme", DBName: "tenant_acme", Active: true},
	}}

	r, opener, shared := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second})

	rc, err := r.Resolve(context.Background(), "good-token")
	require.NoError(t, err)
	defer rc.Close()

	assert.Equal(t, userID, rc.UserID)
	assert.Equal(t, model.RoleAdmin, rc.Role)
	assert.True(t, rc.HasTenant())
	assert.Equal(t, tenantID, rc.TenantID())
	assert.Same(t, opener.dbs["tenant_acme"], rc.Data().Tenant())
	assert.Same(t, shared, rc.Data().Shared())
}

func TestResolveSharedOnly(t *testing.T) {
	userID := uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"platform-token": accessClaims(userID, "", model.RoleAdmin),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{}}

	r, opener, shared := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second})

	rc, err := r.Resolve(context.Background(), "platform-token")
	require.NoError(t, err)
	defer rc.Close()

	// Tenantless claims resolve to the shared database, not an error
	assert.False(t, rc.HasTenant())
	assert.Equal(t, uuid.Nil, rc.TenantID())
	assert.Nil(t, rc.Data().Tenant())
	assert.Same(t, shared, rc.Data().Shared())
	assert.Empty(t, opener.opens)
}

func TestResolveRejectsInvalidToken(t *testing.T) {
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{}}
	r, opener, _ := newTestResolver(t, &mapVerifier{claims: nil}, dir, PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second})

	_, err := r.Resolve(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	// Rejected before any database touch
	assert.Empty(t, opener.opens)
}

func TestResolveRejectsDeactivatedTenant(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"good-token": accessClaims(userID, tenantID.String(), model.RoleUser),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{
		tenantID: {ID: tenantID, Slug: "acme", DBName: "tenant_acme", Active: true},
	}}

	r, _, _ := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second})

	// The token stays verifiable, but resolution refuses the tenant on
	// the first request after deactivation
	rc, err := r.Resolve(context.Background(), "good-token")
	require.NoError(t, err)
	rc.Close()

	dir.deactivate(tenantID)

	_, err = r.Resolve(context.Background(), "good-token")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolveUnknownTenantClaim(t *testing.T) {
	userID := uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"stray-token": accessClaims(userID, uuid.New().String(), model.RoleUser),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{}}

	r, _, _ := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second})

	_, err := r.Resolve(context.Background(), "stray-token")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolvePoolTimeout(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"good-token": accessClaims(userID, tenantID.String(), model.RoleUser),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{
		tenantID: {ID: tenantID, Slug: "acme", DBName: "tenant_acme", Active: true},
	}}

	r, _, _ := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 1, AcquireTimeout: 50 * time.Millisecond})

	rc, err := r.Resolve(context.Background(), "good-token")
	require.NoError(t, err)
	defer rc.Close()

	// The single slot is held; the next resolution times out
	_, err = r.Resolve(context.Background(), "good-token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolveConcurrentTenantsNeverCross(t *testing.T) {
	userA, userB := uuid.New(), uuid.New()
	tenantA, tenantB := uuid.New(), uuid.New()

	verifier := &mapVerifier{claims: map[string]*jwtutil.Claims{
		"token-a": accessClaims(userA, tenantA.String(), model.RoleUser),
		"token-b": accessClaims(userB, tenantB.String(), model.RoleUser),
	}}
	dir := &mapDirectory{records: map[uuid.UUID]*model.Company{
		tenantA: {ID: tenantA, Slug: "alpha", DBName: "tenant_alpha", Active: true},
		tenantB: {ID: tenantB, Slug: "beta", DBName: "tenant_beta", Active: true},
	}}

	r, opener, _ := newTestResolver(t, verifier, dir, PoolConfig{MaxConnsPerTenant: 64, AcquireTimeout: time.Second})

	const perTenant = 50
	var wg sync.WaitGroup
	mismatches := make(chan string, perTenant*2)

	for i := 0; i < perTenant; i++ {
		for _, tok := range []string{"token-a", "token-b"} {
			wg.Add(1)
			go func(tok string) {
				defer wg.Done()
				rc, err := r.Resolve(context.Background(), tok)
				if err != nil {
					mismatches <- err.Error()
					return
				}
				defer rc.Close()
				want := tenantA
				if tok == "token-b" {
					want = tenantB
				}
				if rc.TenantID() != want {
					mismatches <- "handle bound to wrong tenant"
				}
			}(tok)
		}
	}
	wg.Wait()
	close(mismatches)

	for m := range mismatches {
		t.Error(m)
	}
	assert.Equal(t, 1, opener.openCount("tenant_alpha"))
	assert.Equal(t, 1, opener.openCount("tenant_beta"))
}
