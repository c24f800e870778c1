package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// RemoteStatusPaid is the status written by the client when a payment completes.
const RemoteStatusPaid = "paid"

// ParseOrderStatus maps the lower-case remote status. Unknown values and "paid"
// are treated as confirmed.
func ParseOrderStatus(raw string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "processing":
		return OrderStatusProcessing
	case "shipped":
		return OrderStatusShipped
	case "delivered":
		return OrderStatusDelivered
	case "cancelled", "canceled":
		return OrderStatusCancelled
	default:
		return OrderStatusConfirmed
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

const (
	DefaultProductName = "Produto"
	AnonymousUserID    = "anonymous"
)

type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

type Order struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Status            OrderStatus     `json:"status"`
	Items             []OrderItem     `json:"items"`
	Total             decimal.Decimal `json:"total"`
	CreatedAt         time.Time       `json:"createdAt"`
	DeliveryAddress   string          `json:"deliveryAddress,omitempty"`
	TrackingCode      string          `json:"trackingCode,omitempty"`
	EstimatedDelivery string          `json:"estimatedDelivery,omitempty"`
	DeliveredDate     string          `json:"deliveredDate,omitempty"`
}

// DisplayNumber is the short reference shown to customers, e.g. "JA-4F2A9C".
func (o Order) DisplayNumber() string {
	id := o.ID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "JA-" + strings.ToUpper(id)
}

func OrderItemsFromCart(lines []CartLine) []OrderItem {
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Total:       l.Subtotal(),
		})
	}
	return items
}
