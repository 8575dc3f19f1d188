package handler

import (
	"errors"
	"net/http"

	"catalog-service/internal/model"
	"catalog-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImageRequest describes an image metadata submission. The binary lives in
// external storage; Path points at it.
type ImageRequest struct {
	Path      string `json:"path"`
	AltText   string `json:"alt_text"`
	IsPrimary bool   `json:"is_primary"`
}

// ImageUpdateRequest is a partial update: only fields present in the body
// change, the rest keep their stored values
type ImageUpdateRequest struct {
	Path      *string `json:"path"`
	AltText   *string `json:"alt_text"`
	IsPrimary *bool   `json:"is_primary"`
}

// ImageHandler serves product image metadata endpoints
type ImageHandler struct{}

// NewImageHandler creates an image handler
func NewImageHandler() *ImageHandler {
	return &ImageHandler{}
}

// ListForProduct returns all images of a product in sort order
func (h *ImageHandler) ListForProduct(c echo.Context) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	if err := ensureProduct(db, productID); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	var images []model.ProductImage
	if err := db.Where("product_id = ?", productID).
		Order("sort_order ASC, created_at DESC").
		Find(&images).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve images"})
	}

	return c.JSON(http.StatusOK, images)
}

// AddToProduct appends an image to a product. The first image becomes
// primary; a later image marked primary demotes the previous one.
func (h *ImageHandler) AddToProduct(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	var req ImageRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "path is required"})
	}

	if err := ensureProduct(db, productID); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}

	var existing int64
	if err := db.Model(&model.ProductImage{}).
		Where("product_id = ?", productID).
		Count(&existing).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add image"})
	}

	image := model.ProductImage{
		ProductID: productID,
		Path:      req.Path,
		AltText:   req.AltText,
		IsPrimary: req.IsPrimary || existing == 0,
		SortOrder: int(existing),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if image.IsPrimary {
			if err := tx.Model(&model.ProductImage{}).
				Where("product_id = ? AND is_primary = ?", productID, true).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&image).Error
	})
	if err != nil {
		log.Error("Failed to add product image", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add image"})
	}

	log.Info("Product image added",
		zap.String("product_id", productID.String()),
		zap.String("image_id", image.ID.String()))

	return c.JSON(http.StatusCreated, image)
}

// Get returns a single image of a product
func (h *ImageHandler) Get(c echo.Context) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	id, err := uuid.Parse(c.Param("imageId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid image id"})
	}

	var image model.ProductImage
	if err := db.First(&image, "id = ? AND product_id = ?", id, productID).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "image not found"})
	}

	return c.JSON(http.StatusOK, image)
}

// Update applies a partial metadata update; setting primary demotes other
// images of the same product
func (h *ImageHandler) Update(c echo.Context) error {
	log := logger.FromEcho(c)

	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("imageId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid image id"})
	}

	var req ImageUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request data"})
	}

	var image model.ProductImage
	if err := db.First(&image, "id = ?", id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "image not found"})
	}

	if err := applyImageUpdate(&image, req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if image.IsPrimary {
			if err := tx.Model(&model.ProductImage{}).
				Where("product_id = ? AND is_primary = ? AND id != ?", image.ProductID, true, image.ID).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(&image).Error
	})
	if err != nil {
		log.Error("Failed to update product image", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update image"})
	}

	return c.JSON(http.StatusOK, image)
}

// Delete removes an image row
func (h *ImageHandler) Delete(c echo.Context) error {
	db, err := tenantDB(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("imageId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid image id"})
	}

	res := db.Delete(&model.ProductImage{}, "id = ?", id)
	if res.Error != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete image"})
	}
	if res.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "image not found"})
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Image deleted successfully"})
}

// applyImageUpdate folds the submitted fields into the stored image.
// Absent fields keep their values; a present but empty path is rejected.
func applyImageUpdate(image *model.ProductImage, req ImageUpdateRequest) error {
	if req.Path != nil {
		if *req.Path == "" {
			return errors.New("path cannot be empty")
		}
		image.Path = *req.Path
	}
	if req.AltText != nil {
		image.AltText = *req.AltText
	}
	if req.IsPrimary != nil {
		image.IsPrimary = *req.IsPrimary
	}
	return nil
}

func ensureProduct(db *gorm.DB, productID uuid.UUID) error {
	var count int64
	if err := db.Model(&model.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
