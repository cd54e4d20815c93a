package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/halido/binance-trade-bot/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBelowMinNotional is returned when the sized order would violate the
	// pair's minimum notional constraint. Validated before submission so the
	// exchange never has to reject it.
	ErrBelowMinNotional = errors.New("order value below minimum notional")
	// ErrOrderTerminal is returned when polling finds the order in a terminal
	// non-filled state (canceled, rejected, expired).
	ErrOrderTerminal = errors.New("order reached terminal state without filling")
	// ErrSettlementTimeout is returned when a sell is reported filled but the
	// base balance never drops within the settlement ceiling.
	ErrSettlementTimeout = errors.New("balance settlement not observed in time")
)

type Config struct {
	// SubmitMaxAttempts bounds the order submission retry loop.
	SubmitMaxAttempts int
	// SubmitRetryDelay is the fixed pause between submission attempts.
	SubmitRetryDelay time.Duration
	// SubmitTimeout is an optional wall-clock ceiling on the whole submission
	// loop. Zero disables it.
	SubmitTimeout time.Duration
	// PollInitialDelay is the pause before the first status fetch, giving the
	// exchange time to register the order.
	PollInitialDelay time.Duration
	// PollInterval is the pause between status fetches.
	PollInterval time.Duration
	// PollInitialErrorBackoff is the pause after a failed initial fetch.
	PollInitialErrorBackoff time.Duration
	// PollErrorBackoff is the pause after a failed subsequent fetch.
	PollErrorBackoff time.Duration
	// SettlementInterval is the pause between balance checks after a sell
	// fills.
	SettlementInterval time.Duration
	// SettlementTimeout bounds the settlement confirmation loop.
	SettlementTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitMaxAttempts <= 0 {
		c.SubmitMaxAttempts = defaultRetryAttempts
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = defaultRetryDelay
	}
	if c.PollInitialDelay <= 0 {
		c.PollInitialDelay = 3 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.PollInitialErrorBackoff <= 0 {
		c.PollInitialErrorBackoff = 10 * time.Second
	}
	if c.PollErrorBackoff <= 0 {
		c.PollErrorBackoff = 2 * time.Second
	}
	if c.SettlementInterval <= 0 {
		c.SettlementInterval = 250 * time.Millisecond
	}
	if c.SettlementTimeout <= 0 {
		c.SettlementTimeout = 2 * time.Minute
	}
	return c
}

// TradeRecordStore persists trade records at the ordered and complete
// lifecycle transitions. The executor never reads records back.
type TradeRecordStore interface {
	Create(ctx context.Context, record *entity.TradeRecord) error
	Update(ctx context.Context, record *entity.TradeRecord) error
}

// TradeExecutor turns a trade intent into a correctly-sized, correctly-priced
// order, submits it under a bounded retry policy and tracks it through to
// fill confirmation. One Buy or Sell call is one sequential blocking flow;
// concurrent calls are independent and share only the exchange client.
type TradeExecutor struct {
	exchange entity.Exchange
	filters  *SymbolFilterCache
	records  TradeRecordStore
	cfg      Config
}

func New(exchange entity.Exchange, filters *SymbolFilterCache, records TradeRecordStore, cfg Config) *TradeExecutor {
	return &TradeExecutor{
		exchange: exchange,
		filters:  filters,
		records:  records,
		cfg:      cfg.withDefaults(),
	}
}

// Execute dispatches a trade request to the matching side.
func (e *TradeExecutor) Execute(ctx context.Context, req entity.TradeRequest) (*entity.TradeRecord, error) {
	switch req.Side {
	case entity.OrderSideBuy:
		return e.Buy(ctx, req.RequestID, req.Pair())
	case entity.OrderSideSell:
		return e.Sell(ctx, req.RequestID, req.Pair())
	default:
		return nil, fmt.Errorf("unsupported trade side: %s", req.Side)
	}
}

// Buy places a limit buy sized from the full available quote balance at the
// current ticker price and blocks until it fills.
func (e *TradeExecutor) Buy(ctx context.Context, requestID string, pair entity.TradingPair) (*entity.TradeRecord, error) {
	record := entity.NewTradeRecord(requestID, pair, entity.OrderSideBuy)

	var baseBalance, quoteBalance decimal.Decimal
	order, err := Retry(ctx, e.submitPolicy(), "limit buy "+pair.Symbol(), func(ctx context.Context) (*entity.Order, error) {
		filters, tick, err := e.resolveFilters(ctx, pair)
		if err != nil {
			return nil, err
		}

		baseBalance, err = e.freeBalance(ctx, pair.Base)
		if err != nil {
			return nil, err
		}
		quoteBalance, err = e.freeBalance(ctx, pair.Quote)
		if err != nil {
			return nil, err
		}

		price, err := e.exchange.FetchTickerPrice(ctx, pair)
		if err != nil {
			return nil, err
		}

		quantity := BuyQuantity(quoteBalance, price, tick)
		if err := validateNotional(quantity, price, filters.MinNotional); err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"pair":     pair.String(),
			"quantity": quantity.String(),
			"price":    price.String(),
		}).Info("submitting limit buy")

		return e.exchange.SubmitLimitBuy(ctx, pair, quantity, price)
	})
	if err != nil {
		return nil, err
	}

	record.SetOrdered(baseBalance, quoteBalance, order.Quantity, order.OrderID)
	e.persistCreate(ctx, record)

	stat, err := e.waitForOrder(ctx, pair, order.OrderID)
	if err != nil {
		return record, err
	}

	record.SetComplete(stat.CumulativeQuoteQuantity)
	e.persistUpdate(ctx, record)

	logrus.WithFields(logrus.Fields{
		"pair":      pair.String(),
		"order_id":  order.OrderID,
		"quantity":  record.OrderedQuantity.String(),
		"cum_quote": stat.CumulativeQuoteQuantity.String(),
	}).Infof("bought %s", pair.Base)

	return record, nil
}

// Sell places a market sell of the full available base balance, blocks until
// it fills and confirms the balance actually decreased before declaring
// completion.
func (e *TradeExecutor) Sell(ctx context.Context, requestID string, pair entity.TradingPair) (*entity.TradeRecord, error) {
	record := entity.NewTradeRecord(requestID, pair, entity.OrderSideSell)

	var baseBalance, quoteBalance decimal.Decimal
	order, err := Retry(ctx, e.submitPolicy(), "market sell "+pair.Symbol(), func(ctx context.Context) (*entity.Order, error) {
		filters, tick, err := e.resolveFilters(ctx, pair)
		if err != nil {
			return nil, err
		}

		baseBalance, err = e.freeBalance(ctx, pair.Base)
		if err != nil {
			return nil, err
		}
		quoteBalance, err = e.freeBalance(ctx, pair.Quote)
		if err != nil {
			return nil, err
		}

		price, err := e.exchange.FetchTickerPrice(ctx, pair)
		if err != nil {
			return nil, err
		}

		quantity := SellQuantity(baseBalance, tick)
		if err := validateNotional(quantity, price, filters.MinNotional); err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"pair":     pair.String(),
			"quantity": quantity.String(),
			"balance":  baseBalance.String(),
		}).Info("submitting market sell")

		return e.exchange.SubmitMarketSell(ctx, pair, quantity)
	})
	if err != nil {
		return nil, err
	}

	record.SetOrdered(baseBalance, quoteBalance, order.Quantity, order.OrderID)
	e.persistCreate(ctx, record)

	stat, err := e.waitForOrder(ctx, pair, order.OrderID)
	if err != nil {
		return record, err
	}

	if err := e.waitForSettlement(ctx, pair.Base, baseBalance); err != nil {
		return record, err
	}

	record.SetComplete(stat.CumulativeQuoteQuantity)
	e.persistUpdate(ctx, record)

	logrus.WithFields(logrus.Fields{
		"pair":      pair.String(),
		"order_id":  order.OrderID,
		"quantity":  record.OrderedQuantity.String(),
		"cum_quote": stat.CumulativeQuoteQuantity.String(),
	}).Infof("sold %s", pair.Base)

	return record, nil
}

func (e *TradeExecutor) submitPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: e.cfg.SubmitMaxAttempts,
		Delay:       e.cfg.SubmitRetryDelay,
		Timeout:     e.cfg.SubmitTimeout,
	}
}

func (e *TradeExecutor) resolveFilters(ctx context.Context, pair entity.TradingPair) (entity.SymbolFilters, int, error) {
	filters, err := e.filters.Get(ctx, pair)
	if err != nil {
		return entity.SymbolFilters{}, 0, err
	}

	tick, err := filters.TickExponent()
	if err != nil {
		return entity.SymbolFilters{}, 0, Permanent(err)
	}

	return filters, tick, nil
}

func (e *TradeExecutor) freeBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balance, found, err := e.exchange.FetchBalance(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, nil
	}
	return balance, nil
}

func validateNotional(quantity, price, minNotional decimal.Decimal) error {
	notional := quantity.Mul(price)
	if notional.LessThan(minNotional) {
		return Permanent(fmt.Errorf("%w: notional %s < minimum %s",
			ErrBelowMinNotional, notional.String(), minNotional.String()))
	}
	return nil
}

// waitForOrder polls the order status until it is filled. Transport errors
// are retried indefinitely: once an order may be live on the exchange there
// is no safe abort point, so only context cancellation stops the loop.
func (e *TradeExecutor) waitForOrder(ctx context.Context, pair entity.TradingPair, orderID string) (entity.OrderStatusDetail, error) {
	logger := logrus.WithFields(logrus.Fields{
		"pair":     pair.String(),
		"order_id": orderID,
	})

	if err := sleep(ctx, e.cfg.PollInitialDelay); err != nil {
		return entity.OrderStatusDetail{}, err
	}

	var stat entity.OrderStatusDetail
	for {
		var err error
		stat, err = e.exchange.FetchOrderStatus(ctx, pair, orderID)
		if err == nil {
			break
		}

		logger.WithError(err).Info("initial order status fetch failed, retrying")
		if err := sleep(ctx, e.cfg.PollInitialErrorBackoff); err != nil {
			return entity.OrderStatusDetail{}, err
		}
	}
	logger.WithField("status", stat.Status).Info("order status")

	for stat.Status != entity.OrderStatusFilled {
		if stat.Status.Terminal() {
			return stat, fmt.Errorf("order %s is %s: %w", orderID, stat.Status, ErrOrderTerminal)
		}

		if err := sleep(ctx, e.cfg.PollInterval); err != nil {
			return stat, err
		}

		next, err := e.exchange.FetchOrderStatus(ctx, pair, orderID)
		if err != nil {
			logger.WithError(err).Info("order status fetch failed, retrying")
			if err := sleep(ctx, e.cfg.PollErrorBackoff); err != nil {
				return stat, err
			}
			continue
		}

		stat = next
		logger.WithField("status", stat.Status).Info("order status")
	}

	return stat, nil
}

// waitForSettlement polls the base balance until it is strictly below the
// pre-trade balance, guarding against the exchange reporting a fill before
// ledger settlement is visible. Bounded by the settlement timeout.
func (e *TradeExecutor) waitForSettlement(ctx context.Context, asset string, preTradeBalance decimal.Decimal) error {
	deadline := time.Now().Add(e.cfg.SettlementTimeout)

	var lastFetchErr error
	for {
		balance, found, err := e.exchange.FetchBalance(ctx, asset)
		if err != nil {
			lastFetchErr = err
			logrus.WithError(err).WithField("asset", asset).Info("settlement balance fetch failed, retrying")
		} else {
			lastFetchErr = nil
			if !found || balance.LessThan(preTradeBalance) {
				return nil
			}
		}

		if time.Now().After(deadline) {
			if lastFetchErr != nil {
				return fmt.Errorf("%s balance unreadable, last error %v: %w", asset, lastFetchErr, ErrSettlementTimeout)
			}
			return fmt.Errorf("%s balance still at %s: %w", asset, preTradeBalance.String(), ErrSettlementTimeout)
		}

		if err := sleep(ctx, e.cfg.SettlementInterval); err != nil {
			return err
		}
	}
}

func (e *TradeExecutor) persistCreate(ctx context.Context, record *entity.TradeRecord) {
	if e.records == nil {
		return
	}
	if err := e.records.Create(ctx, record); err != nil {
		logrus.WithError(err).WithField("request_id", record.RequestID).Error("failed to persist trade record")
	}
}

func (e *TradeExecutor) persistUpdate(ctx context.Context, record *entity.TradeRecord) {
	if e.records == nil {
		return
	}
	if err := e.records.Update(ctx, record); err != nil {
		logrus.WithError(err).WithField("request_id", record.RequestID).Error("failed to update trade record")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
