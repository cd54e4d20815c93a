package http

import (
	"testing"
	"time"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAPIKeys(t *testing.T, keys []config.APIKeyConfig) {
	t.Helper()
	previous := config.Env
	config.Env = &config.EnvConfig{APIKeys: keys}
	t.Cleanup(func() { config.Env = previous })
}

func TestValidateAPIKey(t *testing.T) {
	setAPIKeys(t, []config.APIKeyConfig{
		{Name: "active", Key: "good-key", Active: true},
		{Name: "inactive", Key: "stale-key", Active: false},
		{Name: "expired", Key: "old-key", Active: true, ExpiredAt: "2020-01-01"},
		{Name: "dated", Key: "dated-key", Active: true, ExpiredAt: "2099-01-01"},
	})

	assert.NoError(t, validateAPIKey("good-key"))
	assert.NoError(t, validateAPIKey("dated-key"))
	assert.ErrorIs(t, validateAPIKey("stale-key"), errAPIKeyInactive)
	assert.ErrorIs(t, validateAPIKey("old-key"), errAPIKeyExpired)
	assert.ErrorIs(t, validateAPIKey("unknown"), errAPIKeyInvalid)
	assert.ErrorIs(t, validateAPIKey(""), errAPIKeyMissing)
}

func TestParseExpiry(t *testing.T) {
	_, has, err := parseExpiry(nil)
	require.NoError(t, err)
	assert.False(t, has)

	_, has, err = parseExpiry("")
	require.NoError(t, err)
	assert.False(t, has)

	expiry, has, err := parseExpiry("2026-06-01")
	require.NoError(t, err)
	assert.True(t, has)
	// date-only expiries are valid through the end of that day
	assert.Equal(t, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC), expiry)

	expiry, has, err = parseExpiry("2026-06-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), expiry)

	_, _, err = parseExpiry(42)
	assert.Error(t, err)
}

func TestMapHTTPRequestToTradeRequest(t *testing.T) {
	req, err := mapHTTPRequestToTradeRequest(&ExecuteTradeRequest{
		BaseSymbol:  " xlm ",
		QuoteSymbol: "btc",
		Side:        "sell",
	})
	require.NoError(t, err)

	assert.Equal(t, "XLM", req.BaseSymbol)
	assert.Equal(t, "BTC", req.QuoteSymbol)
	assert.Equal(t, entity.OrderSideSell, req.Side)
	assert.Equal(t, "http", req.Source)
	assert.NotEmpty(t, req.RequestID, "a request id is generated when absent")

	req, err = mapHTTPRequestToTradeRequest(&ExecuteTradeRequest{
		RequestID:   "req-1",
		BaseSymbol:  "XLM",
		QuoteSymbol: "BTC",
		Side:        "BUY",
		Source:      "scheduler",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, "scheduler", req.Source)

	_, err = mapHTTPRequestToTradeRequest(&ExecuteTradeRequest{
		BaseSymbol:  "XLM",
		QuoteSymbol: "BTC",
		Side:        "HOLD",
	})
	assert.Error(t, err)
}
