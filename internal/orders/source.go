// Package orders pages through a customer's order history, newest first, using
// the creation time of the last order seen as the cursor.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jeffersonhds/storefront/internal/domain"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderSource is the remote order collection.
type OrderSource interface {
	// ListOrders returns at most limit orders of userID ordered by creation time
	// descending. A non-nil before restricts the result to orders created
	// strictly earlier. Records that cannot be decoded are skipped.
	ListOrders(ctx context.Context, userID string, before *time.Time, limit int) ([]domain.Order, error)
	// GetOrder returns ErrOrderNotFound when no order has that id.
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// SaveOrder stores a new order and returns its id.
	SaveOrder(ctx context.Context, order domain.Order) (string, error)
}
