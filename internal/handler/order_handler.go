package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"order-service/internal/orders"
	"order-service/pkg/logger"
	"order-service/prometheus"
)

// OrderRequest defines the structure for order placement requests
type OrderRequest struct {
	CustomerID uint                 `json:"customer_id" validate:"required"`
	AgentID    *uint                `json:"agent_id"`
	Notes      string               `json:"notes"`
	OrderDate  *time.Time           `json:"order_date"`
	Lines      []orders.LineRequest `json:"lines" validate:"required,min=1"`
}

// OrderHeaderRequest defines the structure for order header edits
type OrderHeaderRequest struct {
	Status  string `json:"status"`
	Notes   string `json:"notes"`
	AgentID *uint  `json:"agent_id"`
	Version int    `json:"version"`
}

// OrderLinesRequest defines the structure for order line replacement
type OrderLinesRequest struct {
	Lines []orders.LineRequest `json:"lines" validate:"required,min=1"`
}

// ListOrders handles retrieving orders with optional filtering
func ListOrders(c echo.Context) error {
	log := logger.FromContext(c)

	var filter orders.Filter
	if v := c.QueryParam("customer_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			customerID := uint(id)
			filter.CustomerID = &customerID
		}
	}
	if v := c.QueryParam("agent_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			agentID := uint(id)
			filter.AgentID = &agentID
		}
	}
	filter.Status = c.QueryParam("status")
	filter.StartDate = parseDateParam(c, "start_date")
	filter.EndDate = parseDateParam(c, "end_date")

	result, err := orderEngine.ListOrders(c.Request().Context(), filter)
	if err != nil {
		log.Error("Failed to list orders", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve orders"})
	}

	return c.JSON(http.StatusOK, result)
}

// GetOrder handles retrieving a single order with its lines
func GetOrder(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := parseIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	order, err := orderEngine.GetOrder(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Order not found"})
		}
		log.Error("Failed to load order", zap.Uint("order_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to retrieve order"})
	}

	return c.JSON(http.StatusOK, order)
}

// PlaceOrder handles order placement
func PlaceOrder(c echo.Context) error {
	log := logger.FromContext(c)

	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if req.CustomerID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id is required"})
	}

	defer prometheus.TrackDBOperation("place_order")(time.Now())
	placement, err := orderEngine.PlaceOrder(c.Request().Context(), orders.PlacementInput{
		CustomerID: req.CustomerID,
		AgentID:    req.AgentID,
		Notes:      req.Notes,
		OrderDate:  req.OrderDate,
		Lines:      req.Lines,
	})
	if err != nil {
		prometheus.RecordOrderOperation("place", "error")
		return orderErrorResponse(c, err)
	}

	prometheus.RecordOrderOperation("place", "ok")
	prometheus.OrdersPlacedCounter.Inc()
	if n := len(placement.SkippedProductIDs); n > 0 {
		prometheus.OrderLinesSkippedCounter.Add(float64(n))
	}

	// Publish outside the transaction; a broker failure never unwinds the order.
	if err := publisher.OrderPlaced(c.Request().Context(), placement.Order); err != nil {
		log.Warn("Failed to publish order placed event",
			zap.Uint("order_id", placement.Order.ID),
			zap.Error(err))
	}

	return c.JSON(http.StatusCreated, placement)
}

// CancelOrder handles order cancellation, restoring deducted stock
func CancelOrder(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := parseIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	// Snapshot for the event before the rows disappear.
	order, err := orderEngine.GetOrder(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Order not found"})
		}
		log.Error("Failed to load order", zap.Uint("order_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to cancel order"})
	}

	defer prometheus.TrackDBOperation("cancel_order")(time.Now())
	if err := orderEngine.CancelOrder(c.Request().Context(), id); err != nil {
		prometheus.RecordOrderOperation("cancel", "error")
		return orderErrorResponse(c, err)
	}

	prometheus.RecordOrderOperation("cancel", "ok")
	if err := publisher.OrderCancelled(c.Request().Context(), order); err != nil {
		log.Warn("Failed to publish order cancelled event",
			zap.Uint("order_id", id),
			zap.Error(err))
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Order cancelled successfully"})
}

// UpdateOrderHeader handles status/notes/agent edits with optimistic locking
func UpdateOrderHeader(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := parseIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	var req OrderHeaderRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	order, err := orderEngine.UpdateHeader(c.Request().Context(), id, orders.HeaderUpdate{
		Status:  req.Status,
		Notes:   req.Notes,
		AgentID: req.AgentID,
		Version: req.Version,
	})
	if err != nil {
		prometheus.RecordOrderOperation("update_header", "error")
		return orderErrorResponse(c, err)
	}

	prometheus.RecordOrderOperation("update_header", "ok")
	return c.JSON(http.StatusOK, order)
}

// ReplaceOrderLines handles swapping an order's lines with stock reconciliation
func ReplaceOrderLines(c echo.Context) error {
	log := logger.FromContext(c)

	id, err := parseIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}

	var req OrderLinesRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}

	placement, err := orderEngine.ReplaceLines(c.Request().Context(), id, req.Lines)
	if err != nil {
		prometheus.RecordOrderOperation("replace_lines", "error")
		return orderErrorResponse(c, err)
	}

	prometheus.RecordOrderOperation("replace_lines", "ok")
	if n := len(placement.SkippedProductIDs); n > 0 {
		prometheus.OrderLinesSkippedCounter.Add(float64(n))
	}
	return c.JSON(http.StatusOK, placement)
}

// orderErrorResponse maps engine errors onto HTTP statuses
func orderErrorResponse(c echo.Context, err error) error {
	log := logger.FromContext(c)

	var (
		invalidQty        *orders.InvalidQuantityError
		insufficientStock *orders.InsufficientStockError
	)
	switch {
	case errors.Is(err, orders.ErrEmptyOrder):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order must contain at least one valid line"})
	case errors.As(err, &invalidQty):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": invalidQty.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Order not found"})
	case errors.As(err, &insufficientStock):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":      "insufficient stock",
			"product_id": insufficientStock.ProductID,
		})
	case errors.Is(err, orders.ErrConcurrencyConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "order was modified concurrently, re-fetch and retry"})
	default:
		log.Error("Order operation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Order operation failed"})
	}
}

func parseIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// parseDateParam reads a 2006-01-02 query parameter, nil when absent or invalid
func parseDateParam(c echo.Context, name string) *time.Time {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		logger.FromContext(c).Warn("Invalid date parameter",
			zap.String("param", name),
			zap.String("value", v))
		return nil
	}
	return &t
}
