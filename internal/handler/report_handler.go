package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"order-service/internal/reports"
	"order-service/pkg/logger"
	"order-service/prometheus"
)

// BestSellers handles the best-selling-products report
func BestSellers(c echo.Context) error {
	log := logger.FromContext(c)
	defer prometheus.TrackReportQuery("best_sellers")(time.Now())

	filter := reports.BestSellerFilter{
		StartDate: parseDateParam(c, "start_date"),
		EndDate:   parseDateParam(c, "end_date"),
	}
	if v := c.QueryParam("top_count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.TopCount = n
		}
	}

	rows, err := reportEngine.BestSellingProducts(c.Request().Context(), filter)
	if err != nil {
		log.Error("Best sellers report failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to run report"})
	}

	return c.JSON(http.StatusOK, rows)
}

// CustomerPurchases handles the per-customer purchase summary report
func CustomerPurchases(c echo.Context) error {
	log := logger.FromContext(c)
	defer prometheus.TrackReportQuery("customer_purchases")(time.Now())

	filter := reports.PurchaseFilter{
		StartDate: parseDateParam(c, "start_date"),
		EndDate:   parseDateParam(c, "end_date"),
	}
	if v := c.QueryParam("customer_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			customerID := uint(id)
			filter.CustomerID = &customerID
		}
	}

	rows, err := reportEngine.CustomerPurchaseSummary(c.Request().Context(), filter)
	if err != nil {
		log.Error("Customer purchases report failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to run report"})
	}

	return c.JSON(http.StatusOK, rows)
}

// ProductCustomers handles the per-product customer summary report
func ProductCustomers(c echo.Context) error {
	log := logger.FromContext(c)
	defer prometheus.TrackReportQuery("product_customers")(time.Now())

	filter := reports.ProductCustomerFilter{
		StartDate: parseDateParam(c, "start_date"),
		EndDate:   parseDateParam(c, "end_date"),
	}
	if v := c.QueryParam("product_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			productID := uint(id)
			filter.ProductID = &productID
		}
	}

	rows, err := reportEngine.ProductCustomerSummary(c.Request().Context(), filter)
	if err != nil {
		log.Error("Product customers report failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Failed to run report"})
	}

	return c.JSON(http.StatusOK, rows)
}
