package middleware

import (
	"errors"
	"net/http"
	"strings"

	"catalog-service/internal/tenant"
	"catalog-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const routingContextKey = "routing_context"

// RequestRouter authenticates the request, resolves its tenant and binds
// the routing context before any handler code runs. The acquired connection
// is released on every exit path: success, handler error, or panic.
//
// Unknown and inactive tenants answer 401 like a bad token would, so a
// stolen token cannot be used to probe which tenants exist. The real reason
// is logged.
func RequestRouter(resolver *tenant.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			bearer, ok := bearerToken(c)
			if !ok {
				log.Warn("Missing or malformed authorization header")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing or invalid authorization token"})
			}

			rc, err := resolver.Resolve(c.Request().Context(), bearer)
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrUnauthenticated):
					log.Warn("Token rejected", zap.Error(err))
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
				case errors.Is(err, tenant.ErrUnknownTenant):
					log.Warn("Tenant resolution refused", zap.Error(err))
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
				case errors.Is(err, tenant.ErrUnavailable):
					log.Error("Tenant connection unavailable", zap.Error(err))
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable, retry later"})
				default:
					log.Error("Tenant resolution failed", zap.Error(err))
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
				}
			}

			// Release runs during panic unwinding too; the Recover
			// middleware sits outside this one.
			defer rc.Close()

			c.Set(routingContextKey, rc)

			if rc.HasTenant() {
				log.Debug("Request routed to tenant",
					zap.String("tenant_id", rc.TenantID().String()),
					zap.String("user_id", rc.UserID.String()),
					zap.String("role", rc.Role))
			}

			return next(c)
		}
	}
}

// RoutingContext retrieves the bound routing context from the echo context
func RoutingContext(c echo.Context) (*tenant.RequestContext, bool) {
	rc, ok := c.Get(routingContextKey).(*tenant.RequestContext)
	return rc, ok
}

// Data retrieves the routed data access capability for the request
func Data(c echo.Context) (*tenant.DataAccess, bool) {
	rc, ok := RoutingContext(c)
	if !ok {
		return nil, false
	}
	return rc.Data(), true
}

// RequireTenant rejects requests that resolved to the shared database only.
// Product endpoints make no sense without a tenant binding.
func RequireTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		rc, ok := RoutingContext(c)
		if !ok || !rc.HasTenant() {
			logger.FromEcho(c).Warn("Request carries no tenant binding")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "no company associated with this account"})
		}
		return next(c)
	}
}

// RequireRole allows only the listed roles past. Evaluated after tenant
// resolution, before the handler, so a forbidden request costs nothing
// beyond its acquire/release.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rc, ok := RoutingContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			for _, role := range roles {
				if rc.Role == role {
					return next(c)
				}
			}
			logger.FromEcho(c).Warn("Role not permitted for endpoint",
				zap.String("role", rc.Role),
				zap.String("user_id", rc.UserID.String()))
			return c.JSON(http.StatusForbidden, echo.Map{"error": "you do not have permission to perform this action"})
		}
	}
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
