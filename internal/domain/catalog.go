package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type CatalogItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	Category    *string         `json:"category,omitempty"`
	Discount    *int            `json:"discount,omitempty"`
	IsNew       bool            `json:"isNew"`
}

// DiscountPercent returns the discount clamped to [0,100]. Nil counts as 0.
func (c CatalogItem) DiscountPercent() int {
	if c.Discount == nil {
		return 0
	}
	d := *c.Discount
	if d < 0 {
		return 0
	}
	if d > 100 {
		return 100
	}
	return d
}

func (c CatalogItem) HasDiscount() bool {
	return c.DiscountPercent() > 0
}

// EffectivePrice is the price after discount, never below zero.
func (c CatalogItem) EffectivePrice() decimal.Decimal {
	factor := hundred.Sub(decimal.NewFromInt(int64(c.DiscountPercent()))).Div(hundred)
	p := c.Price.Mul(factor).Round(2)
	if p.IsNegative() {
		return decimal.Zero
	}
	return p
}

func (c CatalogItem) InCategory(category string) bool {
	return c.Category != nil && *c.Category == category
}

// Normalize clamps the discount so persisted records always hold a valid value.
func (c CatalogItem) Normalize() CatalogItem {
	if c.Discount != nil {
		d := c.DiscountPercent()
		c.Discount = &d
	}
	return c
}

type Banner struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	ImageURL  string `json:"imageUrl"`
	ActionURL string `json:"actionUrl,omitempty"`
}
