package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/model"
	"catalog-service/internal/tenant"
	"catalog-service/pkg/jwtutil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubVerifier struct {
	claims map[string]*jwtutil.Claims
}

func (v *stubVerifier) Verify(token string) (*jwtutil.Claims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, tenant.ErrUnauthenticated
}

type stubDirectory struct {
	records map[uuid.UUID]*model.Company
}

func (d *stubDirectory) Lookup(_ context.Context, tenantID uuid.UUID) (*model.Company, error) {
	c, ok := d.records[tenantID]
	if !ok || !c.Active {
		return nil, tenant.ErrUnknownTenant
	}
	return c, nil
}

type routerFixture struct {
	resolver *tenant.Resolver
	pool     *tenant.Pool
	tenantID uuid.UUID
	opens    int
}

func newRouterFixture(t *testing.T, maxConns int64) *routerFixture {
	t.Helper()

	f := &routerFixture{tenantID: uuid.New()}
	opener := func(dbName string) (*gorm.DB, error) {
		f.opens++
		return &gorm.DB{}, nil
	}
	f.pool = tenant.NewPool(opener, tenant.PoolConfig{
		MaxConnsPerTenant: maxConns,
		AcquireTimeout:    50 * time.Millisecond,
	}, zap.NewNop())
	t.Cleanup(f.pool.Shutdown)

	verifier := &stubVerifier{claims: map[string]*jwtutil.Claims{
		"tenant-token": {
			Email:            "user@example.com",
			TenantID:         f.tenantID.String(),
			Role:             model.RoleManager,
			TokenType:        jwtutil.TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		},
		"shared-token": {
			Email:            "admin@example.com",
			Role:             model.RoleAdmin,
			TokenType:        jwtutil.TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		},
		"stray-token": {
			Email:            "user@example.com",
			TenantID:         uuid.New().String(),
			Role:             model.RoleUser,
			TokenType:        jwtutil.TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		},
	}}
	dir := &stubDirectory{records: map[uuid.UUID]*model.Company{
		f.tenantID: {ID: f.tenantID, Slug: "acme", DBName: "tenant_acme", Active: true},
	}}

	f.resolver = tenant.NewResolver(verifier, dir, f.pool, &gorm.DB{}, zap.NewNop())
	return f
}

func (f *routerFixture) do(token string, handler echo.HandlerFunc, mw ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := handler
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	h = RequestRouter(f.resolver)(h)

	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestRequestRouterBindsContext(t *testing.T) {
	f := newRouterFixture(t, 4)

	var seen *tenant.RequestContext
	rec := f.do("tenant-token", func(c echo.Context) error {
		rc, ok := RoutingContext(c)
		require.True(t, ok)
		seen = rc

		data, ok := Data(c)
		require.True(t, ok)
		require.NotNil(t, data.Tenant())
		return c.NoContent(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, f.tenantID, seen.TenantID())
	assert.Equal(t, model.RoleManager, seen.Role)
}

func TestRequestRouterMissingHeader(t *testing.T) {
	f := newRouterFixture(t, 4)

	rec := f.do("", okHandler)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// Rejected before touching the pool
	assert.Zero(t, f.opens)
}

func TestRequestRouterInvalidToken(t *testing.T) {
	f := newRouterFixture(t, 4)

	rec := f.do("garbage", okHandler)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")
	assert.Zero(t, f.opens)
}

func TestRequestRouterUnknownTenantAnswersLikeBadToken(t *testing.T) {
	f := newRouterFixture(t, 4)

	badToken := f.do("garbage", okHandler)
	unknownTenant := f.do("stray-token", okHandler)

	assert.Equal(t, http.StatusUnauthorized, unknownTenant.Code)
	assert.Equal(t, badToken.Body.String(), unknownTenant.Body.String())
}

func TestRequestRouterPoolExhaustedAnswers503(t *testing.T) {
	f := newRouterFixture(t, 1)

	held, err := f.pool.Acquire(context.Background(), f.tenantID, "tenant_acme")
	require.NoError(t, err)
	defer f.pool.Release(held)

	rec := f.do("tenant-token", okHandler)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestRouterReleasesOnSuccess(t *testing.T) {
	f := newRouterFixture(t, 1)

	// With a single slot, any leaked handle makes the next request fail
	for i := 0; i < 5; i++ {
		rec := f.do("tenant-token", okHandler)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRequestRouterReleasesOnHandlerError(t *testing.T) {
	f := newRouterFixture(t, 1)

	for i := 0; i < 3; i++ {
		rec := f.do("tenant-token", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusBadRequest, "boom")
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestRequestRouterReleasesOnPanic(t *testing.T) {
	f := newRouterFixture(t, 1)

	for i := 0; i < 3; i++ {
		func() {
			defer func() {
				require.NotNil(t, recover())
			}()
			f.do("tenant-token", func(c echo.Context) error {
				panic("handler blew up")
			})
		}()
	}

	// All three panics released their handles
	rec := f.do("tenant-token", okHandler)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireTenantRejectsSharedOnly(t *testing.T) {
	f := newRouterFixture(t, 4)

	rec := f.do("shared-token", okHandler, RequireTenant)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "no company associated")
}

func TestRequireTenantPassesTenantRequests(t *testing.T) {
	f := newRouterFixture(t, 4)

	rec := f.do("tenant-token", okHandler, RequireTenant)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	f := newRouterFixture(t, 4)

	handlerRan := false
	rec := f.do("tenant-token", func(c echo.Context) error {
		handlerRan = true
		return c.NoContent(http.StatusOK)
	}, RequireRole(model.RoleAdmin))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, handlerRan)

	rec = f.do("tenant-token", okHandler, RequireRole(model.RoleAdmin, model.RoleManager))
	assert.Equal(t, http.StatusOK, rec.Code)
}
