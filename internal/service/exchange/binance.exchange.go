package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/halido/binance-trade-bot/internal/config"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	binanceCodeInvalidSymbol  = -1121
	binanceCodeTooManyRequest = -1003
	binanceCodeRateLimitOrder = -1015
)

// BinanceExchange implements entity.Exchange against the Binance spot REST
// API, with an optional websocket last-price cache behind FetchTickerPrice.
// Safe for concurrent use: the HTTP client is stateless and the ticker cache
// is mutex-guarded.
type BinanceExchange struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow int64
	httpClient *http.Client
	ticker     *tickerCache
}

func InitBinanceExchange(exchangeConfig config.ExchangeConfig) *BinanceExchange {
	recvWindow := int64(5000)
	if raw := strings.TrimSpace(os.Getenv("BINANCE_RECV_WINDOW")); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 && parsed <= 60000 {
			recvWindow = parsed
		}
	}

	baseURL := strings.TrimSpace(os.Getenv("BINANCE_BASE_URL"))
	if baseURL == "" {
		tld := strings.TrimSpace(exchangeConfig.Tld)
		if tld == "" {
			tld = "com"
		}
		baseURL = "https://api.binance." + tld
	}

	newExchange := &BinanceExchange{
		apiKey:     strings.TrimSpace(exchangeConfig.APIKey),
		apiSecret:  strings.TrimSpace(exchangeConfig.APISecret),
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: recvWindow,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		ticker:     newTickerCache(),
	}

	RegisterExchange(entity.ExchangeBinance, newExchange)

	return newExchange
}

func (e *BinanceExchange) FetchSymbolFilters(ctx context.Context, pair entity.TradingPair) (entity.SymbolFilters, error) {
	query := url.Values{}
	query.Set("symbol", pair.Symbol())

	body, err := e.doPublic(ctx, "/api/v3/exchangeInfo", query)
	if err != nil {
		return entity.SymbolFilters{}, err
	}

	var infoResp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}

	if err := json.Unmarshal(body, &infoResp); err != nil {
		return entity.SymbolFilters{}, entity.NewTransportError(fmt.Errorf("binance exchange info parse failed: %w", err))
	}

	if len(infoResp.Symbols) == 0 {
		return entity.SymbolFilters{}, entity.NewExchangeError(entity.ExchangeErrorSymbolNotFound, 0, fmt.Sprintf("symbol %s not listed", pair.Symbol()))
	}

	var filters entity.SymbolFilters
	for _, filter := range infoResp.Symbols[0].Filters {
		switch filter.FilterType {
		case "LOT_SIZE":
			filters.StepSize = filter.StepSize
		case "MIN_NOTIONAL", "NOTIONAL":
			minNotional, err := decimal.NewFromString(filter.MinNotional)
			if err != nil {
				return entity.SymbolFilters{}, entity.NewExchangeError(entity.ExchangeErrorRejected, 0, fmt.Sprintf("invalid min notional %q for %s", filter.MinNotional, pair.Symbol()))
			}
			filters.MinNotional = minNotional
		}
	}

	if filters.StepSize == "" {
		return entity.SymbolFilters{}, entity.NewExchangeError(entity.ExchangeErrorRejected, 0, fmt.Sprintf("no LOT_SIZE filter published for %s", pair.Symbol()))
	}

	return filters, nil
}

func (e *BinanceExchange) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, bool, error) {
	body, err := e.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return decimal.Zero, false, err
	}

	var accountResp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}

	if err := json.Unmarshal(body, &accountResp); err != nil {
		return decimal.Zero, false, entity.NewTransportError(fmt.Errorf("binance account parse failed: %w", err))
	}

	normalized := strings.ToUpper(strings.TrimSpace(asset))
	for _, balance := range accountResp.Balances {
		if balance.Asset != normalized {
			continue
		}

		free, err := decimal.NewFromString(balance.Free)
		if err != nil {
			return decimal.Zero, false, entity.NewTransportError(fmt.Errorf("invalid free balance %q for %s: %w", balance.Free, normalized, err))
		}

		return free, true, nil
	}

	return decimal.Zero, false, nil
}

func (e *BinanceExchange) FetchTickerPrice(ctx context.Context, pair entity.TradingPair) (decimal.Decimal, error) {
	if price, ok := e.ticker.get(pair.Symbol()); ok {
		return price, nil
	}

	query := url.Values{}
	query.Set("symbol", pair.Symbol())

	body, err := e.doPublic(ctx, "/api/v3/ticker/price", query)
	if err != nil {
		return decimal.Zero, err
	}

	var tickerResp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	if err := json.Unmarshal(body, &tickerResp); err != nil {
		return decimal.Zero, entity.NewTransportError(fmt.Errorf("binance ticker parse failed: %w", err))
	}

	price, err := decimal.NewFromString(tickerResp.Price)
	if err != nil {
		return decimal.Zero, entity.NewTransportError(fmt.Errorf("invalid ticker price %q for %s: %w", tickerResp.Price, pair.Symbol(), err))
	}

	return price, nil
}

func (e *BinanceExchange) SubmitLimitBuy(ctx context.Context, pair entity.TradingPair, quantity, price decimal.Decimal) (*entity.Order, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("side", string(entity.OrderSideBuy))
	params.Set("type", string(entity.OrderTypeLimit))
	params.Set("timeInForce", "GTC")
	params.Set("quantity", quantity.String())
	params.Set("price", price.String())
	params.Set("newOrderRespType", "RESULT")

	return e.submitOrder(ctx, pair, entity.OrderSideBuy, entity.OrderTypeLimit, params)
}

func (e *BinanceExchange) SubmitMarketSell(ctx context.Context, pair entity.TradingPair, quantity decimal.Decimal) (*entity.Order, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("side", string(entity.OrderSideSell))
	params.Set("type", string(entity.OrderTypeMarket))
	params.Set("quantity", quantity.String())
	params.Set("newOrderRespType", "RESULT")

	return e.submitOrder(ctx, pair, entity.OrderSideSell, entity.OrderTypeMarket, params)
}

func (e *BinanceExchange) submitOrder(ctx context.Context, pair entity.TradingPair, side entity.OrderSide, orderType entity.OrderType, params url.Values) (*entity.Order, error) {
	body, err := e.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var orderResp struct {
		OrderID int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Price   string `json:"price"`
		OrigQty string `json:"origQty"`
		Status  string `json:"status"`
	}

	if err := json.Unmarshal(body, &orderResp); err != nil {
		return nil, entity.NewTransportError(fmt.Errorf("binance order parse failed: %w", err))
	}

	origQty, err := decimal.NewFromString(orderResp.OrigQty)
	if err != nil {
		return nil, entity.NewTransportError(fmt.Errorf("invalid order quantity %q: %w", orderResp.OrigQty, err))
	}

	orderPrice := decimal.Zero
	if strings.TrimSpace(orderResp.Price) != "" {
		orderPrice, err = decimal.NewFromString(orderResp.Price)
		if err != nil {
			return nil, entity.NewTransportError(fmt.Errorf("invalid order price %q: %w", orderResp.Price, err))
		}
	}

	order := &entity.Order{
		OrderID:  strconv.FormatInt(orderResp.OrderID, 10),
		Symbol:   orderResp.Symbol,
		Side:     side,
		Type:     orderType,
		Price:    orderPrice,
		Quantity: origQty,
		Status:   entity.OrderStatus(orderResp.Status),
	}

	logrus.WithFields(logrus.Fields{
		"symbol":   pair.Symbol(),
		"side":     side,
		"type":     orderType,
		"order_id": order.OrderID,
		"quantity": order.Quantity.String(),
		"status":   order.Status,
	}).Info("order placed")

	return order, nil
}

func (e *BinanceExchange) FetchOrderStatus(ctx context.Context, pair entity.TradingPair, orderID string) (entity.OrderStatusDetail, error) {
	params := url.Values{}
	params.Set("symbol", pair.Symbol())
	params.Set("orderId", orderID)

	body, err := e.doSigned(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return entity.OrderStatusDetail{}, err
	}

	var statusResp struct {
		Status              string `json:"status"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	}

	if err := json.Unmarshal(body, &statusResp); err != nil {
		return entity.OrderStatusDetail{}, entity.NewTransportError(fmt.Errorf("binance order status parse failed: %w", err))
	}

	executedQty, err := binanceDecimalOrZero(statusResp.ExecutedQty)
	if err != nil {
		return entity.OrderStatusDetail{}, entity.NewTransportError(fmt.Errorf("invalid executed quantity %q: %w", statusResp.ExecutedQty, err))
	}

	cumQuote, err := binanceDecimalOrZero(statusResp.CummulativeQuoteQty)
	if err != nil {
		return entity.OrderStatusDetail{}, entity.NewTransportError(fmt.Errorf("invalid cumulative quote quantity %q: %w", statusResp.CummulativeQuoteQty, err))
	}

	return entity.OrderStatusDetail{
		Status:                  entity.OrderStatus(statusResp.Status),
		ExecutedQuantity:        executedQty,
		CumulativeQuoteQuantity: cumQuote,
	}, nil
}

func (e *BinanceExchange) doPublic(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := e.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, entity.NewTransportError(err)
	}

	return e.do(req)
}

func (e *BinanceExchange) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if e.apiKey == "" || e.apiSecret == "" {
		return nil, entity.NewExchangeError(entity.ExchangeErrorRejected, 0, "binance credentials are missing in config")
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(e.recvWindow, 10))

	payload := params.Encode()
	signed := payload + "&signature=" + hmacSHA256Hex(e.apiSecret, payload)

	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, e.baseURL+path, strings.NewReader(signed))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, e.baseURL+path+"?"+signed, nil)
	}
	if err != nil {
		return nil, entity.NewTransportError(err)
	}

	req.Header.Set("X-MBX-APIKEY", e.apiKey)

	return e.do(req)
}

func (e *BinanceExchange) do(req *http.Request) ([]byte, error) {
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, entity.NewTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, entity.NewTransportError(err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyAPIError(resp.StatusCode, body)
	}

	return body, nil
}

func classifyAPIError(statusCode int, body []byte) error {
	var apiErr struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)

	message := strings.TrimSpace(apiErr.Msg)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case apiErr.Code == binanceCodeInvalidSymbol:
		return entity.NewExchangeError(entity.ExchangeErrorSymbolNotFound, apiErr.Code, message)
	case isRateLimited(statusCode, apiErr.Code):
		// rate limits clear on their own, let the retry delay absorb them
		return entity.NewExchangeError(entity.ExchangeErrorTransport, apiErr.Code, message)
	case statusCode >= http.StatusInternalServerError:
		return entity.NewExchangeError(entity.ExchangeErrorTransport, apiErr.Code, message)
	default:
		return entity.NewExchangeError(entity.ExchangeErrorRejected, apiErr.Code, message)
	}
}

// isRateLimited matches the throttling responses Binance emits: HTTP 429,
// HTTP 418 (auto-ban after ignored 429s) and the -1003/-1015 error codes.
func isRateLimited(statusCode int, code int64) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
		return true
	}

	return code == binanceCodeTooManyRequest || code == binanceCodeRateLimitOrder
}

func binanceDecimalOrZero(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(trimmed)
}

func hmacSHA256Hex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return fmt.Sprintf("%x", mac.Sum(nil))
}
