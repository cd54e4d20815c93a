package executor

import "github.com/shopspring/decimal"

// NormalizeQuantity truncates a quantity to the pair's tick precision:
// floor(quantity * 10^t) / 10^t. Truncation is toward zero, never up, so a
// normalized quantity never exceeds the available balance. Idempotent.
func NormalizeQuantity(quantity decimal.Decimal, tick int) decimal.Decimal {
	if quantity.IsNegative() {
		return decimal.Zero
	}
	return quantity.RoundDown(int32(tick))
}

// SellQuantity is the exchange-legal quantity for selling an available base
// balance.
func SellQuantity(baseBalance decimal.Decimal, tick int) decimal.Decimal {
	return NormalizeQuantity(baseBalance, tick)
}

// BuyQuantity sizes a buy from the available quote balance at the given
// price. The division happens before truncation so the order's cost cannot
// exceed the quote balance.
func BuyQuantity(quoteBalance, price decimal.Decimal, tick int) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return NormalizeQuantity(quoteBalance.Div(price), tick)
}
