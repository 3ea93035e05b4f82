package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"order-service/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Product{},
		&model.Customer{},
		&model.Agent{},
		&model.Order{},
		&model.OrderDetail{},
	))
	return db
}

func newTestEngine(t *testing.T, allowOversell bool) (*Engine, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewEngine(db, nil, allowOversell), db
}

func seedProduct(t *testing.T, db *gorm.DB, name, price string, stock int) model.Product {
	t.Helper()
	product := model.Product{
		Name:          name,
		UnitPrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func seedCustomer(t *testing.T, db *gorm.DB, name string) model.Customer {
	t.Helper()
	customer := model.Customer{Name: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(&customer).Error)
	return customer
}

func stockOf(t *testing.T, db *gorm.DB, productID uint) int {
	t.Helper()
	var product model.Product
	require.NoError(t, db.First(&product, productID).Error)
	return product.StockQuantity
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got),
		"want %s, got %s", want, got)
}

func TestPlaceOrderComputesTotalsAndDeductsStock(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.50", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Notes:      "first order",
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.NotNil(t, placement.Order)

	order := placement.Order
	assert.Equal(t, "ORD000001", order.OrderNumber)
	assert.Equal(t, "Pending", order.Status)
	assert.Empty(t, placement.SkippedProductIDs)
	requireDecimal(t, "31.50", order.TotalAmount)

	require.Len(t, order.Details, 1)
	detail := order.Details[0]
	assert.Equal(t, product.ID, detail.ProductID)
	assert.Equal(t, 3, detail.Quantity)
	requireDecimal(t, "10.50", detail.UnitPrice)
	requireDecimal(t, "31.50", detail.LineTotal)

	assert.Equal(t, 7, stockOf(t, db, product.ID))
}

func TestPlaceOrderTotalMatchesLineSum(t *testing.T) {
	engine, db := newTestEngine(t, true)
	widget := seedProduct(t, db, "Widget", "10.00", 20)
	gadget := seedProduct(t, db, "Gadget", "5.25", 20)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines: []LineRequest{
			{ProductID: widget.ID, Quantity: 2},
			{ProductID: gadget.ID, Quantity: 4},
		},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, d := range placement.Order.Details {
		requireDecimal(t, d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity))).String(), d.LineTotal)
		sum = sum.Add(d.LineTotal)
	}
	require.True(t, sum.Equal(placement.Order.TotalAmount),
		"order total %s != line sum %s", placement.Order.TotalAmount, sum)
	requireDecimal(t, "41.00", placement.Order.TotalAmount)
}

func TestPlaceOrderSnapshotsUnitPrice(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	// A later price change must not alter the persisted snapshot.
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", product.ID).
		Update("unit_price", decimal.RequireFromString("99.99")).Error)

	var detail model.OrderDetail
	require.NoError(t, db.Where("order_id = ?", placement.Order.ID).First(&detail).Error)
	requireDecimal(t, "10.00", detail.UnitPrice)
	requireDecimal(t, "20.00", detail.LineTotal)
}

func TestPlaceOrderSkipsUnknownProducts(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines: []LineRequest{
			{ProductID: product.ID, Quantity: 2},
			{ProductID: 9999, Quantity: 5},
		},
	})
	require.NoError(t, err)

	require.Len(t, placement.Order.Details, 1)
	assert.Equal(t, product.ID, placement.Order.Details[0].ProductID)
	requireDecimal(t, "20.00", placement.Order.TotalAmount)
	assert.Equal(t, []uint{9999}, placement.SkippedProductIDs)
}

func TestPlaceOrderEmptyLines(t *testing.T) {
	engine, _ := newTestEngine(t, true)

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{CustomerID: 1})
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestPlaceOrderAllLinesUnknown(t *testing.T) {
	engine, db := newTestEngine(t, true)
	customer := seedCustomer(t, db, "Alice")

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: 123, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrEmptyOrder)

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderRejectsNonPositiveQuantity(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 0}},
	})

	var invalidQty *InvalidQuantityError
	require.True(t, errors.As(err, &invalidQty))
	assert.Equal(t, product.ID, invalidQty.ProductID)
	assert.Equal(t, 10, stockOf(t, db, product.ID))
}

func TestPlaceOrderOversellAllowed(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 2)
	customer := seedCustomer(t, db, "Alice")

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, -3, stockOf(t, db, product.ID))
}

func TestPlaceOrderOversellRejected(t *testing.T) {
	engine, db := newTestEngine(t, false)
	product := seedProduct(t, db, "Widget", "10.00", 2)
	customer := seedCustomer(t, db, "Alice")

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 5}},
	})

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, product.ID, insufficient.ProductID)
	assert.Equal(t, 5, insufficient.Requested)

	// Nothing committed
	assert.Equal(t, 2, stockOf(t, db, product.ID))
	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrderRollsBackEarlierDeductions(t *testing.T) {
	engine, db := newTestEngine(t, false)
	widget := seedProduct(t, db, "Widget", "10.00", 10)
	gadget := seedProduct(t, db, "Gadget", "5.00", 1)
	customer := seedCustomer(t, db, "Alice")

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines: []LineRequest{
			{ProductID: widget.ID, Quantity: 3},
			{ProductID: gadget.ID, Quantity: 2},
		},
	})

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))

	// The widget deduction from the same transaction must be rolled back.
	assert.Equal(t, 10, stockOf(t, db, widget.ID))
	assert.Equal(t, 1, stockOf(t, db, gadget.ID))
}

func TestCancelOrderRestoresStock(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 7, stockOf(t, db, product.ID))

	require.NoError(t, engine.CancelOrder(context.Background(), placement.Order.ID))

	assert.Equal(t, 10, stockOf(t, db, product.ID))
	var orderCount, detailCount int64
	require.NoError(t, db.Model(&model.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&model.OrderDetail{}).Count(&detailCount).Error)
	assert.Zero(t, orderCount)
	assert.Zero(t, detailCount)
}

func TestCancelOrderNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, true)
	require.ErrorIs(t, engine.CancelOrder(context.Background(), 42), ErrOrderNotFound)
}

func TestCancelOrderSkipsDeletedProduct(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	// Product disappears between placement and cancellation.
	require.NoError(t, db.Delete(&model.Product{}, product.ID).Error)

	require.NoError(t, engine.CancelOrder(context.Background(), placement.Order.ID))

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestOrderNumbersAreSequential(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 100)
	customer := seedCustomer(t, db, "Alice")

	first, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	second, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, "ORD000001", first.Order.OrderNumber)
	assert.Equal(t, "ORD000002", second.Order.OrderNumber)
}

func TestUpdateHeaderOptimisticLocking(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, placement.Order.Version)

	updated, err := engine.UpdateHeader(context.Background(), placement.Order.ID, HeaderUpdate{
		Status:  "Shipped",
		Notes:   "left the warehouse",
		Version: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Shipped", updated.Status)
	assert.Equal(t, 2, updated.Version)

	// A writer holding the old version must be told to re-fetch.
	_, err = engine.UpdateHeader(context.Background(), placement.Order.ID, HeaderUpdate{
		Status:  "Cancelled",
		Version: 1,
	})
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	_, err = engine.UpdateHeader(context.Background(), 9999, HeaderUpdate{Version: 1})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestReplaceLinesReconcilesStock(t *testing.T) {
	engine, db := newTestEngine(t, true)
	widget := seedProduct(t, db, "Widget", "10.00", 10)
	gadget := seedProduct(t, db, "Gadget", "4.00", 5)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: widget.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 7, stockOf(t, db, widget.ID))

	result, err := engine.ReplaceLines(context.Background(), placement.Order.ID,
		[]LineRequest{{ProductID: gadget.ID, Quantity: 2}})
	require.NoError(t, err)

	// Old deduction restored, new one applied exactly once.
	assert.Equal(t, 10, stockOf(t, db, widget.ID))
	assert.Equal(t, 3, stockOf(t, db, gadget.ID))

	require.Len(t, result.Order.Details, 1)
	assert.Equal(t, gadget.ID, result.Order.Details[0].ProductID)
	requireDecimal(t, "8.00", result.Order.TotalAmount)
}

func TestReplaceLinesAllUnknownKeepsOrder(t *testing.T) {
	engine, db := newTestEngine(t, true)
	widget := seedProduct(t, db, "Widget", "10.00", 10)
	customer := seedCustomer(t, db, "Alice")

	placement, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: customer.ID,
		Lines:      []LineRequest{{ProductID: widget.ID, Quantity: 3}},
	})
	require.NoError(t, err)

	_, err = engine.ReplaceLines(context.Background(), placement.Order.ID,
		[]LineRequest{{ProductID: 9999, Quantity: 1}})
	require.ErrorIs(t, err, ErrEmptyOrder)

	// Rolled back: original lines and stock deltas intact.
	assert.Equal(t, 7, stockOf(t, db, widget.ID))
	order, err := engine.GetOrder(context.Background(), placement.Order.ID)
	require.NoError(t, err)
	require.Len(t, order.Details, 1)
	requireDecimal(t, "30.00", order.TotalAmount)
}

func TestListOrdersFilters(t *testing.T) {
	engine, db := newTestEngine(t, true)
	product := seedProduct(t, db, "Widget", "10.00", 100)
	alice := seedCustomer(t, db, "Alice")
	bob := seedCustomer(t, db, "Bob")

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	_, err := engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: alice.ID,
		OrderDate:  &jan,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	_, err = engine.PlaceOrder(context.Background(), PlacementInput{
		CustomerID: bob.ID,
		OrderDate:  &mar,
		Lines:      []LineRequest{{ProductID: product.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	byCustomer, err := engine.ListOrders(context.Background(), Filter{CustomerID: &alice.ID})
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	assert.Equal(t, alice.ID, byCustomer[0].CustomerID)

	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	byDate, err := engine.ListOrders(context.Background(), Filter{StartDate: &feb})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, bob.ID, byDate[0].CustomerID)

	all, err := engine.ListOrders(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first
	assert.Equal(t, bob.ID, all[0].CustomerID)
}
