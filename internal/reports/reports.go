package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"order-service/internal/model"
)

// Engine runs the read-only sales roll-ups. Each query loads the matching
// order lines in one shot and aggregates in memory with an explicit key struct
// per report, so the grouping tuple is fixed by the type system. Grouping keys
// include the displayed descriptive fields on purpose: lines recorded under a
// renamed product fall into a separate group.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

const missingCategory = "N/A"

// BestSellerFilter narrows BestSellingProducts. Either date bound may be nil.
// TopCount <= 0 falls back to 10.
type BestSellerFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	TopCount  int
}

// BestSellingProduct is one row of the best-sellers report.
type BestSellingProduct struct {
	ProductID         uint            `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Category          string          `json:"category"`
	TotalQuantitySold int             `json:"total_quantity_sold"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	OrderCount        int             `json:"order_count"`
}

// PurchaseFilter narrows CustomerPurchaseSummary.
type PurchaseFilter struct {
	CustomerID *uint
	StartDate  *time.Time
	EndDate    *time.Time
}

// CustomerPurchase is one (customer, product) row of the purchase summary.
type CustomerPurchase struct {
	CustomerID       uint            `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	CustomerEmail    string          `json:"customer_email"`
	ProductID        uint            `json:"product_id"`
	ProductName      string          `json:"product_name"`
	TotalQuantity    int             `json:"total_quantity"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	PurchaseCount    int             `json:"purchase_count"`
	LastPurchaseDate time.Time       `json:"last_purchase_date"`
}

// ProductCustomerFilter narrows ProductCustomerSummary.
type ProductCustomerFilter struct {
	ProductID *uint
	StartDate *time.Time
	EndDate   *time.Time
}

// ProductCustomer is one (product, customer) row of the product-customers
// report, tracking both the first and the last purchase date.
type ProductCustomer struct {
	ProductID     uint            `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Category      string          `json:"category"`
	CustomerID    uint            `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	TotalQuantity int             `json:"total_quantity"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	OrderCount    int             `json:"order_count"`
	FirstPurchase time.Time       `json:"first_purchase"`
	LastPurchase  time.Time       `json:"last_purchase"`
}

// loadLines fetches order details joined to their parent order, with optional
// order-level predicates, preloading the entities the reports group by.
func (e *Engine) loadLines(ctx context.Context, where func(*gorm.DB) *gorm.DB) ([]model.OrderDetail, error) {
	q := e.db.WithContext(ctx).Model(&model.OrderDetail{}).
		Select("order_details.*").
		Joins("JOIN orders ON orders.id = order_details.order_id").
		Preload("Order").
		Preload("Order.Customer").
		Preload("Product")
	q = where(q)

	var lines []model.OrderDetail
	if err := q.Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	return lines, nil
}

type productKey struct {
	ProductID   uint
	ProductName string
	Category    string
}

// BestSellingProducts returns the topCount products by total quantity sold
// within the optional date range, ties broken by product id.
func (e *Engine) BestSellingProducts(ctx context.Context, f BestSellerFilter) ([]BestSellingProduct, error) {
	lines, err := e.loadLines(ctx, func(q *gorm.DB) *gorm.DB {
		return dateRange(q, f.StartDate, f.EndDate)
	})
	if err != nil {
		return nil, err
	}

	groups := make(map[productKey]*BestSellingProduct)
	for _, line := range lines {
		if line.Product == nil {
			continue
		}
		key := productKey{
			ProductID:   line.Product.ID,
			ProductName: line.Product.Name,
			Category:    categoryOrPlaceholder(line.Product.Category),
		}
		row, ok := groups[key]
		if !ok {
			row = &BestSellingProduct{
				ProductID:    key.ProductID,
				ProductName:  key.ProductName,
				Category:     key.Category,
				TotalRevenue: decimal.Zero,
			}
			groups[key] = row
		}
		row.TotalQuantitySold += line.Quantity
		row.TotalRevenue = row.TotalRevenue.Add(line.LineTotal)
		row.OrderCount++
	}

	out := make([]BestSellingProduct, 0, len(groups))
	for _, row := range groups {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantitySold != out[j].TotalQuantitySold {
			return out[i].TotalQuantitySold > out[j].TotalQuantitySold
		}
		return out[i].ProductID < out[j].ProductID
	})

	topCount := f.TopCount
	if topCount <= 0 {
		topCount = 10
	}
	if len(out) > topCount {
		out = out[:topCount]
	}
	return out, nil
}

type customerProductKey struct {
	CustomerID    uint
	CustomerName  string
	CustomerEmail string
	ProductID     uint
	ProductName   string
}

// CustomerPurchaseSummary aggregates spend per (customer, product) pair,
// ordered by customer name then total spent descending within each customer.
func (e *Engine) CustomerPurchaseSummary(ctx context.Context, f PurchaseFilter) ([]CustomerPurchase, error) {
	lines, err := e.loadLines(ctx, func(q *gorm.DB) *gorm.DB {
		q = dateRange(q, f.StartDate, f.EndDate)
		if f.CustomerID != nil {
			q = q.Where("orders.customer_id = ?", *f.CustomerID)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	groups := make(map[customerProductKey]*CustomerPurchase)
	for _, line := range lines {
		if line.Product == nil || line.Order == nil || line.Order.Customer == nil {
			continue
		}
		key := customerProductKey{
			CustomerID:    line.Order.Customer.ID,
			CustomerName:  line.Order.Customer.Name,
			CustomerEmail: line.Order.Customer.Email,
			ProductID:     line.Product.ID,
			ProductName:   line.Product.Name,
		}
		row, ok := groups[key]
		if !ok {
			row = &CustomerPurchase{
				CustomerID:    key.CustomerID,
				CustomerName:  key.CustomerName,
				CustomerEmail: key.CustomerEmail,
				ProductID:     key.ProductID,
				ProductName:   key.ProductName,
				TotalSpent:    decimal.Zero,
			}
			groups[key] = row
		}
		row.TotalQuantity += line.Quantity
		row.TotalSpent = row.TotalSpent.Add(line.LineTotal)
		row.PurchaseCount++
		if line.Order.OrderDate.After(row.LastPurchaseDate) {
			row.LastPurchaseDate = line.Order.OrderDate
		}
	}

	out := make([]CustomerPurchase, 0, len(groups))
	for _, row := range groups {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CustomerName != out[j].CustomerName {
			return out[i].CustomerName < out[j].CustomerName
		}
		if c := out[i].TotalSpent.Cmp(out[j].TotalSpent); c != 0 {
			return c > 0
		}
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

type productCustomerKey struct {
	ProductID     uint
	ProductName   string
	Category      string
	CustomerID    uint
	CustomerName  string
	CustomerEmail string
}

// ProductCustomerSummary aggregates per (product, customer) pair, ordered by
// product name then total quantity descending within each product.
func (e *Engine) ProductCustomerSummary(ctx context.Context, f ProductCustomerFilter) ([]ProductCustomer, error) {
	lines, err := e.loadLines(ctx, func(q *gorm.DB) *gorm.DB {
		q = dateRange(q, f.StartDate, f.EndDate)
		if f.ProductID != nil {
			q = q.Where("order_details.product_id = ?", *f.ProductID)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	groups := make(map[productCustomerKey]*ProductCustomer)
	for _, line := range lines {
		if line.Product == nil || line.Order == nil || line.Order.Customer == nil {
			continue
		}
		key := productCustomerKey{
			ProductID:     line.Product.ID,
			ProductName:   line.Product.Name,
			Category:      categoryOrPlaceholder(line.Product.Category),
			CustomerID:    line.Order.Customer.ID,
			CustomerName:  line.Order.Customer.Name,
			CustomerEmail: line.Order.Customer.Email,
		}
		row, ok := groups[key]
		if !ok {
			row = &ProductCustomer{
				ProductID:     key.ProductID,
				ProductName:   key.ProductName,
				Category:      key.Category,
				CustomerID:    key.CustomerID,
				CustomerName:  key.CustomerName,
				CustomerEmail: key.CustomerEmail,
				TotalSpent:    decimal.Zero,
				FirstPurchase: line.Order.OrderDate,
				LastPurchase:  line.Order.OrderDate,
			}
			groups[key] = row
		}
		row.TotalQuantity += line.Quantity
		row.TotalSpent = row.TotalSpent.Add(line.LineTotal)
		row.OrderCount++
		if line.Order.OrderDate.Before(row.FirstPurchase) {
			row.FirstPurchase = line.Order.OrderDate
		}
		if line.Order.OrderDate.After(row.LastPurchase) {
			row.LastPurchase = line.Order.OrderDate
		}
	}

	out := make([]ProductCustomer, 0, len(groups))
	for _, row := range groups {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		if out[i].TotalQuantity != out[j].TotalQuantity {
			return out[i].TotalQuantity > out[j].TotalQuantity
		}
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out, nil
}

func dateRange(q *gorm.DB, start, end *time.Time) *gorm.DB {
	if start != nil {
		q = q.Where("orders.order_date >= ?", *start)
	}
	if end != nil {
		q = q.Where("orders.order_date <= ?", *end)
	}
	return q
}

func categoryOrPlaceholder(category string) string {
	if category == "" {
		return missingCategory
	}
	return category
}
