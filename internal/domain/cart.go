package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is a denormalized snapshot of a catalog item taken when it was added,
// so totals do not move when catalog prices change later.
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

func NewCartLine(item CatalogItem, quantity int, now time.Time) CartLine {
	return CartLine{
		ProductID: item.ID,
		Name:      item.Name,
		ImageURL:  item.ImageURL,
		UnitPrice: item.EffectivePrice(),
		Quantity:  quantity,
		AddedAt:   now,
	}
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
