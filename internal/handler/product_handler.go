package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/tenant"
	"catalog-service/pkg/logger"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductRequest defines the structure for product creation/update requests
type ProductRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Price           float64  `json:"price"`
	CostPrice       *float64 `json:"cost_price,omitempty"`
	SKU             string   `json:"sku"`
	Quantity        int      `json:"quantity"`
	Status          string   `json:"status"`
	IsFeatured      bool     `json:"is_featured"`
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
}

// ProductHandler serves the tenant-scoped product catalog. Every query goes
// through the request's routed data access; no handler ever names a
// database.
type ProductHandler struct{}

// NewProductHandler creates a product handler
func NewProductHandler() *ProductHandler {
	return &ProductHandler{}
}

// tenantDB pulls the routed tenant connection for the request. The
// RequireTenant middleware guarantees it is bound before handlers run.
func tenantDB(c echo.Context) (*gorm.DB, error) {
	data, ok := middleware.Data(c)
	if !ok || !data.HasTenant() {
		return nil, echo.NewHTTPError(http.StatusForbidden, "no company associated with this account")
	}
	return data.Tenant().WithContext(c.Request().Context()), nil
}

// List returns the tenant's products with optional status, featured and
// search filters plus limit/offset pagination
func (h *ProductHandler) List(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	query := db.Model(&model.Product{})

	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if featured := c.QueryParam("featured"); featured != "" {
		if isFeatured, perr := strconv.ParseBool(featured); perr == nil {
			query = query.Where("is_featured = ?", isFeatured)
		}
	}
	if search := c.QueryParam("search"); search != "" {
		query = query.Where("name ILIKE ?", "%"+search+"%")
	}

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if v, perr := strconv.Atoi(l); perr == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	offset := 0
	if o := c.QueryParam("offset"); o != "" {
		if v, perr := strconv.Atoi(o); perr == nil && v >= 0 {
			offset = v
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("Failed to count products", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve products"})
	}

	var products []model.Product
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&products).Error; err != nil {
		log.Error("Failed to list products", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve products"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"count":    total,
		"products": products,
	})
}

// Get returns a single product with its images
func (h *ProductHandler) Get(c echo.Context) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	var product model.Product
	if err := db.Preload("Images").First(&product, "id = ?", id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	return c.JSON(http.StatusOK, product)
}

// Create adds a product to the tenant's catalog. The slug derives from the
// name with a numeric suffix on collision.
func (h *ProductHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}
	rc, _ := middleware.RoutingContext(c)

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	status := req.Status
	if status == "" {
		status = model.ProductStatusDraft
	}

	slug, err := uniqueProductSlug(db, req.Name, uuid.Nil)
	if err != nil {
		log.Error("Failed to derive product slug", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create product"})
	}

	product := model.Product{
		Name:            req.Name,
		Slug:            slug,
		Description:     req.Description,
		Price:           req.Price,
		CostPrice:       req.CostPrice,
		SKU:             req.SKU,
		Quantity:        req.Quantity,
		Status:          status,
		IsFeatured:      req.IsFeatured,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
		CreatedBy:       &rc.UserID,
	}

	if err := db.Create(&product).Error; err != nil {
		log.Error("Failed to create product", zap.String("name", req.Name), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create product"})
	}

	log.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("name", product.Name))
	prometheus.RecordTenantOperation("product_create")

	return c.JSON(http.StatusCreated, product)
}

// Update modifies an existing product
func (h *ProductHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}
	rc, _ := middleware.RoutingContext(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	var product model.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	if req.Name != "" && req.Name != product.Name {
		slug, serr := uniqueProductSlug(db, req.Name, product.ID)
		if serr != nil {
			log.Error("Failed to derive product slug", zap.Error(serr))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update product"})
		}
		product.Name = req.Name
		product.Slug = slug
	}

	product.Description = req.Description
	product.Price = req.Price
	product.CostPrice = req.CostPrice
	product.SKU = req.SKU
	product.Quantity = req.Quantity
	if req.Status != "" {
		product.Status = req.Status
	}
	product.IsFeatured = req.IsFeatured
	product.MetaTitle = req.MetaTitle
	product.MetaDescription = req.MetaDescription
	product.UpdatedBy = &rc.UserID

	if err := db.Save(&product).Error; err != nil {
		log.Error("Failed to update product",
			zap.String("product_id", id.String()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update product"})
	}

	log.Info("Product updated", zap.String("product_id", id.String()))
	return c.JSON(http.StatusOK, product)
}

// Delete removes a product and its image rows
func (h *ProductHandler) Delete(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	res := db.Delete(&model.Product{}, "id = ?", id)
	if res.Error != nil {
		log.Error("Failed to delete product", zap.Error(res.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete product"})
	}
	if res.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	log.Info("Product deleted", zap.String("product_id", id.String()))
	return c.JSON(http.StatusOK, echo.Map{"message": "Product deleted successfully"})
}

// uniqueProductSlug derives a slug from the name and suffixes a counter
// until it is unique within the tenant's catalog
func uniqueProductSlug(db *gorm.DB, name string, excludeID uuid.UUID) (string, error) {
	base := tenant.Slugify(name)
	slug := base
	for counter := 1; ; counter++ {
		var count int64
		query := db.Model(&model.Product{}).Where("slug = ?", slug)
		if excludeID != uuid.Nil {
			query = query.Where("id != ?", excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}
