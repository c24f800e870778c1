package checkout

import "github.com/shopspring/decimal"

var (
	pointsDivisor     = decimal.NewFromInt(10)
	freeShippingKm    = decimal.NewFromInt(5)
	shippingRatePerKm = decimal.RequireFromString("2.5")
	two               = decimal.NewFromInt(2)
)

// LoyaltyPoints is one point per 10 currency units spent, rounded down.
func LoyaltyPoints(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Div(pointsDivisor).Floor().IntPart()
}

// ShippingCost is free up to 5 km; beyond that the round trip is charged at
// 2.50 per km.
func ShippingCost(km decimal.Decimal) decimal.Decimal {
	if km.LessThanOrEqual(freeShippingKm) {
		return decimal.Zero
	}
	return km.Mul(two).Mul(shippingRatePerKm).Round(2)
}
