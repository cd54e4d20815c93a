package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	binanceWSReconnectMinDelay = 1 * time.Second
	binanceWSReconnectMaxDelay = 15 * time.Second
	binanceWSReconnectFactor   = 2.0

	// Streamed prices older than this are ignored and the REST ticker
	// endpoint is used instead.
	tickerMaxAge = 5 * time.Second
)

type tickerCache struct {
	mu     sync.RWMutex
	prices map[string]streamedPrice
}

type streamedPrice struct {
	price decimal.Decimal
	at    time.Time
}

func newTickerCache() *tickerCache {
	return &tickerCache{prices: make(map[string]streamedPrice)}
}

func (c *tickerCache) get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	entry, ok := c.prices[symbol]
	c.mu.RUnlock()

	if !ok || time.Since(entry.at) > tickerMaxAge {
		return decimal.Zero, false
	}

	return entry.price, true
}

func (c *tickerCache) set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	c.prices[symbol] = streamedPrice{price: price, at: time.Now()}
	c.mu.Unlock()
}

// StartTickerStream subscribes to the miniTicker streams of the given pairs
// and keeps the last-price cache warm. Blocks until ctx is canceled,
// reconnecting with exponential backoff and jitter on failure.
func (e *BinanceExchange) StartTickerStream(ctx context.Context, pairs []entity.TradingPair) error {
	if len(pairs) == 0 {
		return nil
	}

	wsURL := strings.TrimSpace(os.Getenv("BINANCE_WS_URL"))
	if wsURL == "" {
		wsURL = "wss://stream.binance.com:9443/stream"
	}

	streams := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		streams = append(streams, strings.ToLower(pair.Symbol())+"@miniTicker")
	}

	wsHost, err := url.Parse(wsURL + "?streams=" + strings.Join(streams, "/"))
	if err != nil {
		return fmt.Errorf("invalid binance ws url: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		logrus.Infof("connecting to %s", wsHost.String())
		conn, _, err := websocket.DefaultDialer.Dial(wsHost.String(), nil)
		if err != nil {
			wait := binanceReconnectDelay(attempt, rng)
			attempt++
			logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warnf("binance ws dial failed: %v", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		attempt = 0
		conn.SetPongHandler(func(string) error {
			return nil
		})

		stopPing := make(chan struct{})
		go func(c *websocket.Conn) {
			ticker := time.NewTicker(2 * time.Minute)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						logrus.Error(err)
						return
					}
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				}
			}
		}(conn)

		ctxDone := make(chan struct{})
		go func(c *websocket.Conn) {
			select {
			case <-ctx.Done():
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Close()
			case <-ctxDone:
			}
		}(conn)

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					close(stopPing)
					close(ctxDone)
					return nil
				}

				logrus.Errorf("binance ws read failed: %v", err)
				break
			}

			if err := e.handleTickerMessage(message); err != nil {
				logrus.Errorf("binance ws handle ticker failed: %v", err)
			}
		}

		close(stopPing)
		close(ctxDone)
		_ = conn.Close()

		wait := binanceReconnectDelay(attempt, rng)
		attempt++
		logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warn("reconnecting binance ws")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (e *BinanceExchange) handleTickerMessage(message []byte) error {
	var payload struct {
		Stream string `json:"stream"`
		Data   struct {
			Event  string `json:"e"`
			Symbol string `json:"s"`
			Close  string `json:"c"`
		} `json:"data"`
	}

	if err := json.Unmarshal(message, &payload); err != nil {
		return err
	}

	if payload.Data.Event != "24hrMiniTicker" || payload.Data.Close == "" {
		return nil
	}

	price, err := decimal.NewFromString(payload.Data.Close)
	if err != nil {
		return fmt.Errorf("invalid ticker close price: %w", err)
	}

	e.ticker.set(strings.ToUpper(payload.Data.Symbol), price)

	return nil
}

func binanceReconnectDelay(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(binanceWSReconnectMinDelay) * math.Pow(binanceWSReconnectFactor, float64(attempt))
	if backoff > float64(binanceWSReconnectMaxDelay) {
		backoff = float64(binanceWSReconnectMaxDelay)
	}

	base := time.Duration(backoff)
	jitterWindow := binanceWSReconnectMaxDelay - binanceWSReconnectMinDelay
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > binanceWSReconnectMaxDelay {
		return binanceWSReconnectMaxDelay
	}

	return result
}
