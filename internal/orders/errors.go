package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyOrder is returned when a placement request contains no valid lines.
	ErrEmptyOrder = errors.New("order has no valid lines")

	// ErrOrderNotFound is returned when the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrConcurrencyConflict is returned when an edit targets a row that changed
	// since it was read. The caller should re-fetch and retry.
	ErrConcurrencyConflict = errors.New("order was modified by another request")
)

// InvalidQuantityError reports a requested line whose quantity is not positive.
type InvalidQuantityError struct {
	ProductID uint
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %d", e.Quantity, e.ProductID)
}

// InsufficientStockError reports a line that would drive stock negative while
// oversell is disabled.
type InsufficientStockError struct {
	ProductID uint
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (requested %d)", e.ProductID, e.Requested)
}
