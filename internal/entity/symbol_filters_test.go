package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickExponent(t *testing.T) {
	tests := []struct {
		stepSize string
		want     int
	}{
		{"0.00100000", 3},
		{"0.00010000", 4},
		{"0.00000001", 8},
		{"0.10000000", 1},
		{"1.00000000", 0},
		{"10.00000000", -1},
		{"100.00000000", -2},
		{"1", 0},
		{"100", -2},
		{"0.001", 3},
	}

	for _, tt := range tests {
		t.Run(tt.stepSize, func(t *testing.T) {
			got, err := TickExponent(tt.stepSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTickExponentNoSignificantDigit(t *testing.T) {
	for _, stepSize := range []string{"", "0.00000000", "abc"} {
		_, err := TickExponent(stepSize)
		assert.Error(t, err, "step size %q", stepSize)
	}
}

func TestSymbolFiltersTickExponent(t *testing.T) {
	filters := SymbolFilters{
		StepSize:    "0.01000000",
		MinNotional: decimal.RequireFromString("0.0001"),
	}

	tick, err := filters.TickExponent()
	require.NoError(t, err)
	assert.Equal(t, 2, tick)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusFilled.Terminal())
	assert.True(t, OrderStatusCanceled.Terminal())
	assert.True(t, OrderStatusRejected.Terminal())
	assert.True(t, OrderStatusExpired.Terminal())
	assert.False(t, OrderStatusNew.Terminal())
	assert.False(t, OrderStatusPartiallyFilled.Terminal())
}

func TestExchangeErrorClassification(t *testing.T) {
	transport := NewExchangeError(ExchangeErrorTransport, 0, "gateway timeout")
	rejected := NewExchangeError(ExchangeErrorRejected, -2010, "insufficient balance")
	notFound := NewExchangeError(ExchangeErrorSymbolNotFound, -1121, "invalid symbol")

	assert.True(t, IsRetryable(transport))
	assert.False(t, IsRetryable(rejected))
	assert.False(t, IsRetryable(notFound))

	assert.True(t, IsSymbolNotFound(notFound))
	assert.False(t, IsSymbolNotFound(rejected))
	assert.True(t, IsRejected(rejected))

	// unclassified errors stay retryable
	assert.True(t, IsRetryable(assert.AnError))
}

func TestTradingPairSymbol(t *testing.T) {
	pair := NewTradingPair(" xlm ", "btc")
	assert.Equal(t, "XLMBTC", pair.Symbol())
	assert.Equal(t, "XLM/BTC", pair.String())
}
