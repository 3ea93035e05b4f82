package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"order-service/internal/model"
	"order-service/pkg/database"
	"order-service/pkg/logger"
	"order-service/prometheus"
)

// ProductRequest defines the structure for product creation/update requests
type ProductRequest struct {
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	UnitPrice     decimal.Decimal `json:"unit_price" validate:"required"`
	StockQuantity int             `json:"stock_quantity"`
	Category      string          `json:"category"`
}

// ListProducts handles retrieving all products with optional filtering
func ListProducts(c echo.Context) error {
	log := logger.FromContext(c)

	db := database.GetDB()
	var products []model.Product

	query := db

	// Only products with stock on hand, used by the order form
	if inStock := c.QueryParam("in_stock"); inStock != "" {
		if filter, err := strconv.ParseBool(inStock); err == nil && filter {
			query = query.Where("stock_quantity > 0")
		} else if err != nil {
			log.Warn("Invalid in_stock parameter", zap.String("value", inStock), zap.Error(err))
		}
	}

	if category := c.QueryParam("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	result := query.Order("name").Find(&products)
	if result.Error != nil {
		log.Error("Failed to list products", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve products"})
	}

	return c.JSON(http.StatusOK, products)
}

// GetProduct handles retrieving a single product by ID
func GetProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var product model.Product
	result := database.GetDB().First(&product, id)
	if result.Error != nil {
		log.Warn("Product not found", zap.String("product_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}

	return c.JSON(http.StatusOK, product)
}

// CreateProduct handles creating a new product
func CreateProduct(c echo.Context) error {
	log := logger.FromContext(c)

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	if req.UnitPrice.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unit_price must not be negative"})
	}
	if req.StockQuantity < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "stock_quantity must not be negative"})
	}

	product := model.Product{
		Name:          req.Name,
		Description:   req.Description,
		UnitPrice:     req.UnitPrice,
		StockQuantity: req.StockQuantity,
		Category:      req.Category,
	}

	result := database.GetDB().Create(&product)
	if result.Error != nil {
		log.Error("Failed to create product",
			zap.String("name", req.Name),
			zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to create product"})
	}

	prometheus.ProductStockGauge.
		WithLabelValues(strconv.FormatUint(uint64(product.ID), 10), product.Category).
		Set(float64(product.StockQuantity))

	log.Info("Product created",
		zap.Uint("product_id", product.ID),
		zap.String("name", product.Name))
	return c.JSON(http.StatusCreated, product)
}

// UpdateProduct handles updating an existing product
func UpdateProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var req ProductRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.String("product_id", id), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	var product model.Product
	result := database.GetDB().First(&product, id)
	if result.Error != nil {
		log.Warn("Product not found for update", zap.String("product_id", id))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}

	if req.UnitPrice.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unit_price must not be negative"})
	}

	oldPrice := product.UnitPrice

	// Price changes never touch historical order lines; those keep the
	// snapshot taken at placement time.
	product.Name = req.Name
	product.Description = req.Description
	product.UnitPrice = req.UnitPrice
	product.StockQuantity = req.StockQuantity
	product.Category = req.Category

	result = database.GetDB().Save(&product)
	if result.Error != nil {
		log.Error("Failed to update product", zap.String("product_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to update product"})
	}

	prometheus.ProductStockGauge.
		WithLabelValues(strconv.FormatUint(uint64(product.ID), 10), product.Category).
		Set(float64(product.StockQuantity))

	log.Info("Product updated",
		zap.Uint("product_id", product.ID),
		zap.String("old_price", oldPrice.String()),
		zap.String("new_price", product.UnitPrice.String()))
	return c.JSON(http.StatusOK, product)
}

// DeleteProduct handles deleting a product. Deletion is refused while order
// lines still reference the product, so historical orders stay resolvable.
func DeleteProduct(c echo.Context) error {
	log := logger.FromContext(c)
	id := c.Param("id")

	var referenced int64
	database.GetDB().Model(&model.OrderDetail{}).Where("product_id = ?", id).Count(&referenced)
	if referenced > 0 {
		log.Warn("Product referenced by order lines",
			zap.String("product_id", id),
			zap.Int64("lines", referenced))
		return c.JSON(http.StatusConflict, echo.Map{"error": "Product is referenced by existing orders"})
	}

	result := database.GetDB().Delete(&model.Product{}, id)
	if result.Error != nil {
		log.Error("Failed to delete product", zap.String("product_id", id), zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to delete product"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Product not found"})
	}

	log.Info("Product deleted", zap.String("product_id", id))
	return c.JSON(http.StatusOK, echo.Map{"message": "Product deleted successfully"})
}
