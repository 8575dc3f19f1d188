package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/middleware"
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

type fixedVerifier struct {
	claims map[string]*jwtutil.Claims
}

func (v *fixedVerifier) Verify(token string) (*jwtutil.Claims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, tenant.ErrUnauthenticated
}

type fixedDirectory struct {
	records map[uuid.UUID]*model.Company
}

func (d *fixedDirectory) Lookup(_ context.Context, tenantID uuid.UUID) (*model.Company, error) {
	c, ok := d.records[tenantID]
	if !ok || !c.Active {
		return nil, tenant.ErrUnknownTenant
	}
	return c, nil
}

// recordingDirectory counts mutations so tests can prove a refused request
// never reached the directory
type recordingDirectory struct {
	deactivated []uuid.UUID
}

func (d *recordingDirectory) List(context.Context) ([]model.Company, error) {
	return nil, nil
}

func (d *recordingDirectory) Deactivate(_ context.Context, tenantID uuid.UUID) error {
	d.deactivated = append(d.deactivated, tenantID)
	return nil
}

func TestDeactivateScopedToOwnCompany(t *testing.T) {
	companyA := &model.Company{ID: uuid.New(), Slug: "alpha", DBName: "tenant_alpha", Active: true}
	companyB := &model.Company{ID: uuid.New(), Slug: "beta", DBName: "tenant_beta", Active: true}

	verifier := &fixedVerifier{claims: map[string]*jwtutil.Claims{
		"admin-a": {
			Email:            "admin@alpha.example.com",
			TenantID:         companyA.ID.String(),
			Role:             model.RoleAdmin,
			TokenType:        jwtutil.TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		},
		"platform-admin": {
			Email:            "ops@example.com",
			Role:             model.RoleAdmin,
			TokenType:        jwtutil.TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
		},
	}}
	lookup := &fixedDirectory{records: map[uuid.UUID]*model.Company{
		companyA.ID: companyA,
		companyB.ID: companyB,
	}}

	pool := tenant.NewPool(func(string) (*gorm.DB, error) {
		return &gorm.DB{}, nil
	}, tenant.PoolConfig{MaxConnsPerTenant: 4, AcquireTimeout: time.Second}, zap.NewNop())
	t.Cleanup(pool.Shutdown)

	resolver := tenant.NewResolver(verifier, lookup, pool, &gorm.DB{}, zap.NewNop())

	deactivate := func(token string, target uuid.UUID, dir *recordingDirectory) *httptest.ResponseRecorder {
		h := NewCompanyHandler(dir)

		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/api/companies/"+target.String()+"/deactivate", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(target.String())

		chain := middleware.RequestRouter(resolver)(middleware.RequireRole(model.RoleAdmin)(h.Deactivate))
		if err := chain(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	t.Run("foreign company refused", func(t *testing.T) {
		dir := &recordingDirectory{}
		rec := deactivate("admin-a", companyB.ID, dir)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, dir.deactivated)
	})

	t.Run("own company deactivates", func(t *testing.T) {
		dir := &recordingDirectory{}
		rec := deactivate("admin-a", companyA.ID, dir)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, dir.deactivated, 1)
		assert.Equal(t, companyA.ID, dir.deactivated[0])
	})

	t.Run("company-less admin refused", func(t *testing.T) {
		dir := &recordingDirectory{}
		rec := deactivate("platform-admin", companyB.ID, dir)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Empty(t, dir.deactivated)
	})
}
