package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents the product master data. Stock is mutated only through
// the order engine's guarded adjustments.
type Product struct {
	ID            uint            `json:"id" gorm:"primarykey"`
	Name          string          `json:"name" gorm:"type:varchar(100);not null"`
	Description   string          `json:"description" gorm:"type:varchar(500)"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,2);not null"`
	StockQuantity int             `json:"stock_quantity" gorm:"not null;default:0"`
	Category      string          `json:"category" gorm:"type:varchar(50)"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
