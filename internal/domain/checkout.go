package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	PhoneNumber string `json:"phoneNumber"`
}

func (c CustomerInfo) DeliveryAddress() string {
	if c.City == "" {
		return c.Address
	}
	return c.Address + ", " + c.City
}

type CheckoutItem struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// CheckoutSession is what the payment provider needs to present its sheet.
type CheckoutSession struct {
	PaymentToken string `json:"paymentIntent"`
	EphemeralKey string `json:"ephemeralKey"`
	CustomerRef  string `json:"customer"`
}

type PaymentOutcome string

const (
	PaymentCompleted PaymentOutcome = "completed"
	PaymentCanceled  PaymentOutcome = "canceled"
	PaymentFailed    PaymentOutcome = "failed"
)

func (o PaymentOutcome) IsValid() bool {
	switch o {
	case PaymentCompleted, PaymentCanceled, PaymentFailed:
		return true
	}
	return false
}

// CheckoutEvent is published on the checkout-outbox topic once a payment is
// completed and the order saved.
type CheckoutEvent struct {
	CheckoutID  string          `json:"checkout_id"`
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CompletedAt time.Time       `json:"completed_at"`
}
