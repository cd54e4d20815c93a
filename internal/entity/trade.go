package entity

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type TradeState string

const (
	TradeStateStarted  TradeState = "STARTED"
	TradeStateOrdered  TradeState = "ORDERED"
	TradeStateComplete TradeState = "COMPLETE"
)

// TradeRecord tracks one trade attempt through its lifecycle: created when
// the attempt begins, set ordered once submission succeeds, set complete
// once the order is filled. The executor hands it to the repository at the
// ordered and complete transitions and never reads it back.
type TradeRecord struct {
	ID                      string           `db:"id" json:"id"`
	RequestID               string           `db:"request_id" json:"request_id"`
	BaseSymbol              string           `db:"base_symbol" json:"base_symbol"`
	QuoteSymbol             string           `db:"quote_symbol" json:"quote_symbol"`
	Side                    OrderSide        `db:"side" json:"side"`
	State                   TradeState       `db:"state" json:"state"`
	OrderID                 sql.NullString   `db:"order_id" json:"order_id"`
	PreTradeBaseBalance     decimal.Decimal  `db:"pre_trade_base_balance" json:"pre_trade_base_balance"`
	PreTradeQuoteBalance    decimal.Decimal  `db:"pre_trade_quote_balance" json:"pre_trade_quote_balance"`
	OrderedQuantity         decimal.Decimal  `db:"ordered_quantity" json:"ordered_quantity"`
	CumulativeQuoteQuantity *decimal.Decimal `db:"cumulative_quote_quantity" json:"cumulative_quote_quantity"`
	OrderedAt               sql.NullTime     `db:"ordered_at" json:"ordered_at"`
	CompletedAt             sql.NullTime     `db:"completed_at" json:"completed_at"`
	CreatedAt               time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at" json:"updated_at"`
}

func (t TradeRecord) TableName() string {
	return "trade_records"
}

func NewTradeRecord(requestID string, pair TradingPair, side OrderSide) *TradeRecord {
	now := time.Now().UTC()
	return &TradeRecord{
		RequestID:   requestID,
		BaseSymbol:  pair.Base,
		QuoteSymbol: pair.Quote,
		Side:        side,
		State:       TradeStateStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (t *TradeRecord) Pair() TradingPair {
	return TradingPair{Base: t.BaseSymbol, Quote: t.QuoteSymbol}
}

// SetOrdered records the starting balances, the submitted quantity and the
// exchange order id. Called exactly once, when submission succeeds.
func (t *TradeRecord) SetOrdered(baseBalance, quoteBalance, quantity decimal.Decimal, orderID string) {
	now := time.Now().UTC()
	t.State = TradeStateOrdered
	t.PreTradeBaseBalance = baseBalance
	t.PreTradeQuoteBalance = quoteBalance
	t.OrderedQuantity = quantity
	t.OrderID = sql.NullString{String: orderID, Valid: orderID != ""}
	t.OrderedAt = sql.NullTime{Time: now, Valid: true}
	t.UpdatedAt = now
}

// SetComplete records the realized quote quantity once the order is filled.
func (t *TradeRecord) SetComplete(cumulativeQuoteQuantity decimal.Decimal) {
	now := time.Now().UTC()
	t.State = TradeStateComplete
	t.CumulativeQuoteQuantity = &cumulativeQuoteQuantity
	t.CompletedAt = sql.NullTime{Time: now, Valid: true}
	t.UpdatedAt = now
}

// TradeRequest is the intent handed to the executor: which pair, which
// direction. Sizing and pricing are the executor's job.
type TradeRequest struct {
	RequestID   string    `json:"request_id"`
	BaseSymbol  string    `json:"base_symbol"`
	QuoteSymbol string    `json:"quote_symbol"`
	Side        OrderSide `json:"side"`
	RequestedAt int64     `json:"requested_at"`
	Source      string    `json:"source"`
}

func (r TradeRequest) Pair() TradingPair {
	return NewTradingPair(r.BaseSymbol, r.QuoteSymbol)
}

type TradeRequestEvent struct {
	RetryCount int          `json:"retry"`
	Data       TradeRequest `json:"data"`
}
