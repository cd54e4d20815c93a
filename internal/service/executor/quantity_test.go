package executor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeQuantity(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		tick     int
		want     string
	}{
		{"truncates toward zero", "12.3456", 3, "12.345"},
		{"already normalized", "12.345", 3, "12.345"},
		{"zero tick drops fraction", "5.999", 0, "5"},
		{"negative tick floors to coarse step", "545", -2, "500"},
		{"zero quantity", "0", 3, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeQuantity(decimal.RequireFromString(tt.quantity), tt.tick)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNormalizeQuantityNegative(t *testing.T) {
	got := NormalizeQuantity(decimal.RequireFromString("-1.5"), 3)
	assert.True(t, got.IsZero())
}

func TestNormalizeQuantityIdempotent(t *testing.T) {
	once := NormalizeQuantity(decimal.RequireFromString("0.123456789"), 5)
	twice := NormalizeQuantity(once, 5)
	assert.True(t, once.Equal(twice))
}

func TestNormalizeQuantityNeverExceedsInput(t *testing.T) {
	quantity := decimal.RequireFromString("7.7777777")
	for tick := -2; tick <= 8; tick++ {
		normalized := NormalizeQuantity(quantity, tick)
		assert.True(t, normalized.LessThanOrEqual(quantity), "tick %d", tick)
	}
}

func TestSellQuantity(t *testing.T) {
	got := SellQuantity(decimal.RequireFromString("12.3456"), 3)
	assert.Equal(t, "12.345", got.String())
}

func TestBuyQuantity(t *testing.T) {
	quoteBalance := decimal.RequireFromString("0.1234")
	price := decimal.RequireFromString("0.01")

	got := BuyQuantity(quoteBalance, price, 3)
	assert.Equal(t, "12.34", got.String())

	// affordability: cost of the sized order never exceeds the balance
	assert.True(t, got.Mul(price).LessThanOrEqual(quoteBalance))
}

func TestBuyQuantityNonPositivePrice(t *testing.T) {
	quoteBalance := decimal.RequireFromString("1")

	assert.True(t, BuyQuantity(quoteBalance, decimal.Zero, 3).IsZero())
	assert.True(t, BuyQuantity(quoteBalance, decimal.RequireFromString("-0.5"), 3).IsZero())
}
