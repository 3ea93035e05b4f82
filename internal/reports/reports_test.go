package reports

import (
	"context"
	"fmt"
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

type fixture struct {
	db     *gorm.DB
	engine *Engine

	alice, bob     model.Customer
	widget, gadget model.Product

	orderSeq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db, engine: NewEngine(db)}

	f.alice = model.Customer{Name: "Alice", Email: "alice@example.com"}
	f.bob = model.Customer{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, db.Create(&f.alice).Error)
	require.NoError(t, db.Create(&f.bob).Error)

	f.widget = model.Product{Name: "Widget", Category: "Tools", UnitPrice: decimal.RequireFromString("10.00")}
	f.gadget = model.Product{Name: "Gadget", UnitPrice: decimal.RequireFromString("5.50")}
	require.NoError(t, db.Create(&f.widget).Error)
	require.NoError(t, db.Create(&f.gadget).Error)

	return f
}

type line struct {
	product  model.Product
	quantity int
}

func (f *fixture) seedOrder(t *testing.T, customer model.Customer, date time.Time, lines ...line) model.Order {
	t.Helper()
	f.orderSeq++

	order := model.Order{
		OrderNumber: fmt.Sprintf("ORD%06d", f.orderSeq),
		OrderDate:   date,
		CustomerID:  customer.ID,
		Status:      "Pending",
		TotalAmount: decimal.Zero,
	}
	for _, l := range lines {
		lineTotal := l.product.UnitPrice.Mul(decimal.NewFromInt(int64(l.quantity)))
		order.Details = append(order.Details, model.OrderDetail{
			ProductID: l.product.ID,
			Quantity:  l.quantity,
			UnitPrice: l.product.UnitPrice,
			LineTotal: lineTotal,
		})
		order.TotalAmount = order.TotalAmount.Add(lineTotal)
	}
	require.NoError(t, f.db.Create(&order).Error)
	return order
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestBestSellingProductsOrdering(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 5})
	f.seedOrder(t, f.bob, date(2024, 2, 15), line{f.gadget, 3})

	rows, err := f.engine.BestSellingProducts(context.Background(), BestSellerFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, f.widget.ID, rows[0].ProductID)
	assert.Equal(t, "Widget", rows[0].ProductName)
	assert.Equal(t, "Tools", rows[0].Category)
	assert.Equal(t, 5, rows[0].TotalQuantitySold)
	assert.Equal(t, 1, rows[0].OrderCount)
	assert.True(t, decimal.RequireFromString("50.00").Equal(rows[0].TotalRevenue))

	// Missing category normalizes to the placeholder.
	assert.Equal(t, f.gadget.ID, rows[1].ProductID)
	assert.Equal(t, "N/A", rows[1].Category)
	assert.Equal(t, 3, rows[1].TotalQuantitySold)
}

func TestBestSellingProductsTopCount(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 5})
	f.seedOrder(t, f.bob, date(2024, 2, 15), line{f.gadget, 3})

	rows, err := f.engine.BestSellingProducts(context.Background(), BestSellerFilter{TopCount: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.widget.ID, rows[0].ProductID)
}

func TestBestSellingProductsDateRange(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 5})
	f.seedOrder(t, f.bob, date(2024, 2, 15), line{f.gadget, 3})

	start := date(2024, 2, 1)
	rows, err := f.engine.BestSellingProducts(context.Background(), BestSellerFilter{StartDate: &start})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.gadget.ID, rows[0].ProductID)

	end := date(2023, 12, 31)
	rows, err = f.engine.BestSellingProducts(context.Background(), BestSellerFilter{EndDate: &end})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBestSellingProductsAggregatesAcrossOrders(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2})
	f.seedOrder(t, f.bob, date(2024, 1, 20), line{f.widget, 4})

	rows, err := f.engine.BestSellingProducts(context.Background(), BestSellerFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 6, rows[0].TotalQuantitySold)
	assert.Equal(t, 2, rows[0].OrderCount)
	assert.True(t, decimal.RequireFromString("60.00").Equal(rows[0].TotalRevenue))
}

func TestCustomerPurchaseSummaryOrdering(t *testing.T) {
	f := newFixture(t)
	// Bob first so insertion order differs from the expected sort order.
	f.seedOrder(t, f.bob, date(2024, 1, 5), line{f.gadget, 1})
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2}, line{f.gadget, 1})

	rows, err := f.engine.CustomerPurchaseSummary(context.Background(), PurchaseFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Customer name ascending, then total spent descending within Alice.
	assert.Equal(t, "Alice", rows[0].CustomerName)
	assert.Equal(t, f.widget.ID, rows[0].ProductID)
	assert.True(t, decimal.RequireFromString("20.00").Equal(rows[0].TotalSpent))
	assert.Equal(t, "Alice", rows[1].CustomerName)
	assert.Equal(t, f.gadget.ID, rows[1].ProductID)
	assert.Equal(t, "Bob", rows[2].CustomerName)
	assert.Equal(t, "bob@example.com", rows[2].CustomerEmail)
}

func TestCustomerPurchaseSummaryAggregates(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2})
	f.seedOrder(t, f.alice, date(2024, 3, 1), line{f.widget, 3})

	rows, err := f.engine.CustomerPurchaseSummary(context.Background(), PurchaseFilter{CustomerID: &f.alice.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 5, row.TotalQuantity)
	assert.Equal(t, 2, row.PurchaseCount)
	assert.True(t, decimal.RequireFromString("50.00").Equal(row.TotalSpent))
	assert.True(t, row.LastPurchaseDate.Equal(date(2024, 3, 1)),
		"last purchase %s", row.LastPurchaseDate)
}

func TestCustomerPurchaseSummaryEmptyRange(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2})

	start := date(2025, 1, 1)
	end := date(2025, 12, 31)
	rows, err := f.engine.CustomerPurchaseSummary(context.Background(), PurchaseFilter{
		StartDate: &start,
		EndDate:   &end,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCustomerPurchaseSummaryCustomerFilter(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2})
	f.seedOrder(t, f.bob, date(2024, 1, 11), line{f.widget, 1})

	rows, err := f.engine.CustomerPurchaseSummary(context.Background(), PurchaseFilter{CustomerID: &f.bob.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0].CustomerName)
}

func TestProductCustomerSummaryOrdering(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2}, line{f.gadget, 7})
	f.seedOrder(t, f.bob, date(2024, 1, 15), line{f.widget, 5})

	rows, err := f.engine.ProductCustomerSummary(context.Background(), ProductCustomerFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Product name ascending: Gadget before Widget; within Widget,
	// quantity descending puts Bob first.
	assert.Equal(t, "Gadget", rows[0].ProductName)
	assert.Equal(t, "N/A", rows[0].Category)
	assert.Equal(t, "Widget", rows[1].ProductName)
	assert.Equal(t, "Bob", rows[1].CustomerName)
	assert.Equal(t, 5, rows[1].TotalQuantity)
	assert.Equal(t, "Widget", rows[2].ProductName)
	assert.Equal(t, "Alice", rows[2].CustomerName)
}

func TestProductCustomerSummaryFirstAndLastPurchase(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 1})
	f.seedOrder(t, f.alice, date(2024, 4, 2), line{f.widget, 2})

	rows, err := f.engine.ProductCustomerSummary(context.Background(), ProductCustomerFilter{ProductID: &f.widget.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 3, row.TotalQuantity)
	assert.Equal(t, 2, row.OrderCount)
	assert.True(t, row.FirstPurchase.Equal(date(2024, 1, 10)), "first purchase %s", row.FirstPurchase)
	assert.True(t, row.LastPurchase.Equal(date(2024, 4, 2)), "last purchase %s", row.LastPurchase)
}

func TestProductCustomerSummaryProductFilter(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2}, line{f.gadget, 1})

	rows, err := f.engine.ProductCustomerSummary(context.Background(), ProductCustomerFilter{ProductID: &f.gadget.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, f.gadget.ID, rows[0].ProductID)
	assert.True(t, decimal.RequireFromString("5.50").Equal(rows[0].TotalSpent))
}

func TestBestSellersAfterProductRename(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, f.alice, date(2024, 1, 10), line{f.widget, 2})

	// Lines resolve names through the live product row, so a rename moves
	// the whole history under the new name rather than splitting the group.
	require.NoError(t, f.db.Model(&model.Product{}).Where("id = ?", f.widget.ID).
		Update("name", "Widget Pro").Error)
	f.seedOrder(t, f.alice, date(2024, 2, 10), line{f.widget, 1})

	rows, err := f.engine.BestSellingProducts(context.Background(), BestSellerFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Widget Pro", rows[0].ProductName)
	assert.Equal(t, 3, rows[0].TotalQuantitySold)
}
