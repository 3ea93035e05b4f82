package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"order-service/internal/model"
)

// Engine owns the order lifecycle: placement, cancellation and edits. It holds
// no state between calls; everything lives in the database, and every mutating
// operation runs as a single transaction so stock deltas and order rows commit
// or roll back together.
type Engine struct {
	db            *gorm.DB
	log           *zap.Logger
	allowOversell bool
}

// NewEngine creates an order engine. With allowOversell set, placements may
// drive stock negative (the legacy policy); otherwise a line whose quantity
// exceeds available stock is rejected.
func NewEngine(db *gorm.DB, log *zap.Logger, allowOversell bool) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, log: log, allowOversell: allowOversell}
}

// LineRequest is one requested (product, quantity) selection.
type LineRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// PlacementInput carries everything needed to place an order.
type PlacementInput struct {
	CustomerID uint
	AgentID    *uint
	Notes      string
	OrderDate  *time.Time
	Lines      []LineRequest
}

// Placement is the result of a successful placement or line replacement.
// SkippedProductIDs lists requested products that no longer exist; their lines
// were dropped rather than failing the order.
type Placement struct {
	Order             *model.Order `json:"order"`
	SkippedProductIDs []uint       `json:"skipped_product_ids,omitempty"`
}

// HeaderUpdate carries an order header edit. Version must match the persisted
// row or the edit is rejected with ErrConcurrencyConflict.
type HeaderUpdate struct {
	Status  string
	Notes   string
	AgentID *uint
	Version int
}

// Filter narrows ListOrders results. Nil / zero fields are ignored.
type Filter struct {
	CustomerID *uint
	AgentID    *uint
	Status     string
	StartDate  *time.Time
	EndDate    *time.Time
}

// PlaceOrder validates the requested lines against the catalog, snapshots unit
// prices, deducts stock and persists the order with its lines atomically.
func (e *Engine) PlaceOrder(ctx context.Context, in PlacementInput) (*Placement, error) {
	if len(in.Lines) == 0 {
		return nil, ErrEmptyOrder
	}

	orderDate := time.Now()
	if in.OrderDate != nil {
		orderDate = *in.OrderDate
	}

	var placement *Placement
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := nextOrderNumber(tx)
		if err != nil {
			return err
		}

		details, total, skipped, err := e.buildLines(tx, in.Lines)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return ErrEmptyOrder
		}

		order := model.Order{
			OrderNumber: number,
			OrderDate:   orderDate,
			CustomerID:  in.CustomerID,
			AgentID:     in.AgentID,
			TotalAmount: total,
			Status:      "Pending",
			Notes:       in.Notes,
			Version:     1,
			Details:     details,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("persist order: %w", err)
		}

		placement = &Placement{Order: &order, SkippedProductIDs: skipped}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("order placed",
		zap.Uint("order_id", placement.Order.ID),
		zap.String("order_number", placement.Order.OrderNumber),
		zap.Uint("customer_id", in.CustomerID),
		zap.Int("lines", len(placement.Order.Details)),
		zap.Int("skipped_lines", len(placement.SkippedProductIDs)),
		zap.String("total", placement.Order.TotalAmount.String()))
	return placement, nil
}

// CancelOrder reverses a placement: each line's quantity is restored to its
// product's stock and the order with its lines is removed, all in one
// transaction. Stock restoration for products deleted in the interim is
// skipped, mirroring the skip on placement.
func (e *Engine) CancelOrder(ctx context.Context, orderID uint) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Preload("Details").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order %d: %w", orderID, err)
		}

		for _, d := range order.Details {
			res := tx.Model(&model.Product{}).
				Where("id = ?", d.ProductID).
				Update("stock_quantity", gorm.Expr("stock_quantity + ?", d.Quantity))
			if res.Error != nil {
				return fmt.Errorf("restore stock for product %d: %w", d.ProductID, res.Error)
			}
			// RowsAffected == 0: product deleted since placement, nothing to restore.
		}

		if err := tx.Where("order_id = ?", order.ID).Delete(&model.OrderDetail{}).Error; err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}
		if err := tx.Delete(&model.Order{}, order.ID).Error; err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("order cancelled", zap.Uint("order_id", orderID))
	return nil
}

// UpdateHeader edits status, notes and agent on an order. The caller supplies
// the version it read; a stale version means another request changed the row
// and the edit is rejected for re-fetch-and-retry.
func (e *Engine) UpdateHeader(ctx context.Context, orderID uint, in HeaderUpdate) (*model.Order, error) {
	var updated model.Order
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Order{}).
			Where("id = ? AND version = ?", orderID, in.Version).
			Updates(map[string]interface{}{
				"status":   in.Status,
				"notes":    in.Notes,
				"agent_id": in.AgentID,
				"version":  in.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("update order header: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&model.Order{}).Where("id = ?", orderID).Count(&exists).Error; err != nil {
				return fmt.Errorf("check order existence: %w", err)
			}
			if exists == 0 {
				return ErrOrderNotFound
			}
			return ErrConcurrencyConflict
		}
		return tx.First(&updated, orderID).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ReplaceLines swaps an order's lines for a new set: the old stock deltas are
// restored, the new lines are applied through the same validation as
// placement, and the order total is recomputed. Stock is never double-counted.
func (e *Engine) ReplaceLines(ctx context.Context, orderID uint, lines []LineRequest) (*Placement, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	var placement *Placement
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order
		if err := tx.Preload("Details").First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("load order %d: %w", orderID, err)
		}

		for _, d := range order.Details {
			res := tx.Model(&model.Product{}).
				Where("id = ?", d.ProductID).
				Update("stock_quantity", gorm.Expr("stock_quantity + ?", d.Quantity))
			if res.Error != nil {
				return fmt.Errorf("restore stock for product %d: %w", d.ProductID, res.Error)
			}
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&model.OrderDetail{}).Error; err != nil {
			return fmt.Errorf("delete old lines: %w", err)
		}

		details, total, skipped, err := e.buildLines(tx, lines)
		if err != nil {
			return err
		}
		if len(details) == 0 {
			return ErrEmptyOrder
		}
		for i := range details {
			details[i].OrderID = order.ID
		}
		if err := tx.Create(&details).Error; err != nil {
			return fmt.Errorf("persist new lines: %w", err)
		}

		res := tx.Model(&model.Order{}).Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"total_amount": total,
				"version":      order.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("update order total: %w", res.Error)
		}

		var reloaded model.Order
		if err := tx.Preload("Details").First(&reloaded, order.ID).Error; err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		placement = &Placement{Order: &reloaded, SkippedProductIDs: skipped}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("order lines replaced",
		zap.Uint("order_id", orderID),
		zap.Int("lines", len(placement.Order.Details)),
		zap.String("total", placement.Order.TotalAmount.String()))
	return placement, nil
}

// GetOrder loads an order with its lines, products, customer and agent.
func (e *Engine) GetOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	err := e.db.WithContext(ctx).
		Preload("Details").
		Preload("Details.Product").
		Preload("Customer").
		Preload("Agent").
		First(&order, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	return &order, nil
}

// ListOrders returns orders matching the filter, newest first.
func (e *Engine) ListOrders(ctx context.Context, f Filter) ([]model.Order, error) {
	q := e.db.WithContext(ctx).Model(&model.Order{}).
		Preload("Customer").
		Preload("Agent")

	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.AgentID != nil {
		q = q.Where("agent_id = ?", *f.AgentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.StartDate != nil {
		q = q.Where("order_date >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("order_date <= ?", *f.EndDate)
	}

	var out []model.Order
	if err := q.Order("order_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// buildLines runs the shared line loop: fetch each product, snapshot its unit
// price, compute the line total and deduct stock with a guarded UPDATE so
// concurrent placements serialize at the product row. Unknown products are
// skipped and reported; they never fail the order.
func (e *Engine) buildLines(tx *gorm.DB, lines []LineRequest) ([]model.OrderDetail, decimal.Decimal, []uint, error) {
	var (
		details []model.OrderDetail
		skipped []uint
		total   = decimal.Zero
	)

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, nil, &InvalidQuantityError{ProductID: line.ProductID, Quantity: line.Quantity}
		}

		var product model.Product
		if err := tx.First(&product, line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				skipped = append(skipped, line.ProductID)
				continue
			}
			return nil, decimal.Zero, nil, fmt.Errorf("load product %d: %w", line.ProductID, err)
		}

		deduct := tx.Model(&model.Product{}).Where("id = ?", product.ID)
		if !e.allowOversell {
			deduct = deduct.Where("stock_quantity >= ?", line.Quantity)
		}
		res := deduct.Update("stock_quantity", gorm.Expr("stock_quantity - ?", line.Quantity))
		if res.Error != nil {
			return nil, decimal.Zero, nil, fmt.Errorf("deduct stock for product %d: %w", product.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, decimal.Zero, nil, &InsufficientStockError{ProductID: product.ID, Requested: line.Quantity}
		}

		lineTotal := product.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		details = append(details, model.OrderDetail{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitPrice: product.UnitPrice,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return details, total, skipped, nil
}
