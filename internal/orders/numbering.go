package orders

import (
	"fmt"

	"gorm.io/gorm"

	"order-service/internal/model"
)

// nextOrderNumber derives the next human-facing order number from the highest
// existing order id. It must run inside the same transaction as the insert;
// the unique index on order_number turns a racing duplicate into a failed
// transaction instead of a silent collision.
func nextOrderNumber(tx *gorm.DB) (string, error) {
	var maxID uint
	err := tx.Model(&model.Order{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error
	if err != nil {
		return "", fmt.Errorf("query last order id: %w", err)
	}
	return fmt.Sprintf("ORD%06d", maxID+1), nil
}
