package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	require.NoError(t, err)
	return value
}

func newTestExchange(t *testing.T, handler http.Handler) *BinanceExchange {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("BINANCE_BASE_URL", srv.URL)

	return InitBinanceExchange(config.ExchangeConfig{
		Name:      "binance",
		APIKey:    "test-key",
		APISecret: "test-secret",
	})
}

func TestFetchSymbolFilters(t *testing.T) {
	var gotSymbol string
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"symbols": [{
				"symbol": "XLMBTC",
				"filters": [
					{"filterType": "PRICE_FILTER", "tickSize": "0.00000001"},
					{"filterType": "LOT_SIZE", "stepSize": "0.00100000"},
					{"filterType": "NOTIONAL", "minNotional": "0.00010000"}
				]
			}]
		}`))
	}))

	filters, err := exchange.FetchSymbolFilters(context.Background(), entity.NewTradingPair("XLM", "BTC"))
	require.NoError(t, err)

	assert.Equal(t, "XLMBTC", gotSymbol)
	assert.Equal(t, "0.00100000", filters.StepSize)
	assert.Equal(t, "0.0001", filters.MinNotional.String())

	tick, err := filters.TickExponent()
	require.NoError(t, err)
	assert.Equal(t, 3, tick)
}

func TestFetchSymbolFiltersUnknownSymbol(t *testing.T) {
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols": []}`))
	}))

	_, err := exchange.FetchSymbolFilters(context.Background(), entity.NewTradingPair("NOPE", "BTC"))
	require.Error(t, err)
	assert.True(t, entity.IsSymbolNotFound(err))
	assert.False(t, entity.IsRetryable(err))
}

func TestFetchBalance(t *testing.T) {
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/account", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))

		_, _ = w.Write([]byte(`{
			"balances": [
				{"asset": "BTC", "free": "0.50000000", "locked": "0.00000000"},
				{"asset": "XLM", "free": "12.34560000", "locked": "0.00000000"}
			]
		}`))
	}))

	balance, found, err := exchange.FetchBalance(context.Background(), "xlm")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "12.3456", balance.String())

	_, found, err = exchange.FetchBalance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchTickerPrice(t *testing.T) {
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol": "XLMBTC", "price": "0.01000000"}`))
	}))

	price, err := exchange.FetchTickerPrice(context.Background(), entity.NewTradingPair("XLM", "BTC"))
	require.NoError(t, err)
	assert.Equal(t, "0.01", price.String())
}

func TestFetchTickerPricePrefersStreamCache(t *testing.T) {
	restCalls := 0
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		restCalls++
		_, _ = w.Write([]byte(`{"symbol": "XLMBTC", "price": "0.01000000"}`))
	}))

	require.NoError(t, exchange.handleTickerMessage([]byte(`{
		"data": {"e": "24hrMiniTicker", "s": "XLMBTC", "c": "0.02000000"}
	}`)))

	price, err := exchange.FetchTickerPrice(context.Background(), entity.NewTradingPair("XLM", "BTC"))
	require.NoError(t, err)
	assert.Equal(t, "0.02", price.String())
	assert.Zero(t, restCalls)
}

func TestSubmitLimitBuy(t *testing.T) {
	var gotParams url.Values
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		gotParams = r.PostForm

		_, _ = w.Write([]byte(`{
			"orderId": 28,
			"symbol": "XLMBTC",
			"price": "0.01000000",
			"origQty": "12.34000000",
			"status": "NEW"
		}`))
	}))

	order, err := exchange.SubmitLimitBuy(context.Background(), entity.NewTradingPair("XLM", "BTC"),
		mustDecimal(t, "12.34"), mustDecimal(t, "0.01"))
	require.NoError(t, err)

	assert.Equal(t, "XLMBTC", gotParams.Get("symbol"))
	assert.Equal(t, "BUY", gotParams.Get("side"))
	assert.Equal(t, "LIMIT", gotParams.Get("type"))
	assert.Equal(t, "GTC", gotParams.Get("timeInForce"))
	assert.Equal(t, "12.34", gotParams.Get("quantity"))
	assert.Equal(t, "0.01", gotParams.Get("price"))
	assert.NotEmpty(t, gotParams.Get("signature"))

	assert.Equal(t, "28", order.OrderID)
	assert.Equal(t, entity.OrderStatusNew, order.Status)
	assert.Equal(t, "12.34", order.Quantity.String())
}

func TestSubmitMarketSell(t *testing.T) {
	var gotParams url.Values
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotParams = r.PostForm

		_, _ = w.Write([]byte(`{
			"orderId": 29,
			"symbol": "XLMBTC",
			"origQty": "12.34500000",
			"status": "FILLED"
		}`))
	}))

	order, err := exchange.SubmitMarketSell(context.Background(), entity.NewTradingPair("XLM", "BTC"),
		mustDecimal(t, "12.345"))
	require.NoError(t, err)

	assert.Equal(t, "SELL", gotParams.Get("side"))
	assert.Equal(t, "MARKET", gotParams.Get("type"))
	assert.Empty(t, gotParams.Get("timeInForce"))
	assert.Equal(t, "29", order.OrderID)
}

func TestSubmitMarketSellRateLimited(t *testing.T) {
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code": -1003, "msg": "Too many requests; current limit is 1200 requests per minute."}`))
	}))

	_, err := exchange.SubmitMarketSell(context.Background(), entity.NewTradingPair("XLM", "BTC"),
		mustDecimal(t, "12.345"))
	require.Error(t, err)
	assert.True(t, entity.IsRetryable(err))
	assert.False(t, entity.IsRejected(err))
}

func TestFetchOrderStatus(t *testing.T) {
	exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "28", r.URL.Query().Get("orderId"))

		_, _ = w.Write([]byte(`{
			"status": "FILLED",
			"executedQty": "12.34000000",
			"cummulativeQuoteQty": "0.12340000"
		}`))
	}))

	stat, err := exchange.FetchOrderStatus(context.Background(), entity.NewTradingPair("XLM", "BTC"), "28")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusFilled, stat.Status)
	assert.Equal(t, "12.34", stat.ExecutedQuantity.String())
	assert.Equal(t, "0.1234", stat.CumulativeQuoteQuantity.String())
}

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "invalid symbol",
			statusCode: http.StatusBadRequest,
			body:       `{"code": -1121, "msg": "Invalid symbol."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsSymbolNotFound(err))
				assert.False(t, entity.IsRetryable(err))
			},
		},
		{
			name:       "business rejection",
			statusCode: http.StatusBadRequest,
			body:       `{"code": -2010, "msg": "Account has insufficient balance."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsRejected(err))
				assert.False(t, entity.IsRetryable(err))
			},
		},
		{
			name:       "server error",
			statusCode: http.StatusServiceUnavailable,
			body:       `{"code": -1001, "msg": "Internal error."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsRetryable(err))
			},
		},
		{
			name:       "request rate limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"code": -1003, "msg": "Too many requests; current limit is 1200 requests per minute."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsRetryable(err))
				assert.False(t, entity.IsRejected(err))
			},
		},
		{
			name:       "order rate limit",
			statusCode: http.StatusBadRequest,
			body:       `{"code": -1015, "msg": "Too many new orders."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsRetryable(err))
			},
		},
		{
			name:       "ip auto ban",
			statusCode: http.StatusTeapot,
			body:       `{"code": -1003, "msg": "Way too many requests; IP banned until 1644134400000."}`,
			check: func(t *testing.T, err error) {
				assert.True(t, entity.IsRetryable(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchange := newTestExchange(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := exchange.FetchTickerPrice(context.Background(), entity.NewTradingPair("XLM", "BTC"))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSignedRequestRequiresCredentials(t *testing.T) {
	t.Setenv("BINANCE_BASE_URL", "http://127.0.0.1:1")
	exchange := InitBinanceExchange(config.ExchangeConfig{Name: "binance"})

	_, _, err := exchange.FetchBalance(context.Background(), "XLM")
	require.Error(t, err)
	assert.True(t, entity.IsRejected(err))
}
