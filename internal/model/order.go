package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the placement aggregate root. TotalAmount always equals the sum of
// its detail line totals; both are recomputed server-side on every write.
type Order struct {
	ID          uint            `json:"id" gorm:"primarykey"`
	OrderNumber string          `json:"order_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	OrderDate   time.Time       `json:"order_date" gorm:"not null;index"`
	CustomerID  uint            `json:"customer_id" gorm:"not null;index"`
	Customer    *Customer       `json:"customer,omitempty"`
	AgentID     *uint           `json:"agent_id" gorm:"index"`
	Agent       *Agent          `json:"agent,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(18,2);not null"`
	Status      string          `json:"status" gorm:"type:varchar(50);not null;default:'Pending'"`
	Notes       string          `json:"notes" gorm:"type:varchar(500)"`
	// Version is the optimistic-lock counter checked by header edits.
	Version   int           `json:"version" gorm:"not null;default:1"`
	Details   []OrderDetail `json:"details,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// OrderDetail is one line of an order. UnitPrice is a snapshot of the product
// price at placement time; later price changes never alter historical orders.
type OrderDetail struct {
	ID        uint            `json:"id" gorm:"primarykey"`
	OrderID   uint            `json:"order_id" gorm:"not null;index"`
	Order     *Order          `json:"-"`
	ProductID uint            `json:"product_id" gorm:"not null;index"`
	Product   *Product        `json:"product,omitempty"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,2);not null"`
	LineTotal decimal.Decimal `json:"line_total" gorm:"type:decimal(18,2);not null"`
}
