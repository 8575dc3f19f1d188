package handler

import (
	"context"
	"errors"
	"net/http"

	"catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/tenant"
	"catalog-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type companyDirectory interface {
	List(ctx context.Context) ([]model.Company, error)
	Deactivate(ctx context.Context, tenantID uuid.UUID) error
}

// CompanyHandler serves company listing and administration endpoints
type CompanyHandler struct {
	directory companyDirectory
}

// NewCompanyHandler creates a company handler
func NewCompanyHandler(directory companyDirectory) *CompanyHandler {
	return &CompanyHandler{directory: directory}
}

// List returns all active companies. Public: used during registration to
// pick an existing company.
func (h *CompanyHandler) List(c echo.Context) error {
	companies, err := h.directory.List(c.Request().Context())
	if err != nil {
		logger.FromEcho(c).Error("Failed to list companies", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve companies"})
	}
	return c.JSON(http.StatusOK, companies)
}

// Deactivate marks a company inactive. Takes effect for new resolutions
// immediately while in-flight requests finish undisturbed. The admin role
// is scoped to the requester's own company, so only that company can be
// deactivated here.
func (h *CompanyHandler) Deactivate(c echo.Context) error {
	log := logger.FromEcho(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid company id"})
	}

	rc, ok := middleware.RoutingContext(c)
	if !ok || rc.Company == nil || rc.Company.ID != id {
		log.Warn("Deactivation refused for foreign company",
			zap.String("company_id", id.String()))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you do not have permission to perform this action"})
	}

	if err := h.directory.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, tenant.ErrUnknownTenant) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
		}
		log.Error("Failed to deactivate company", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivation failed"})
	}

	log.Info("Company deactivated", zap.String("company_id", id.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "Company deactivated"})
}
