package entity

import "github.com/shopspring/decimal"

type OrderType string
type OrderSide string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"

	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"

	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Terminal reports whether the status can never transition again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

type OrderRequest struct {
	Pair     TradingPair
	Type     OrderType
	Side     OrderSide
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Order is the exchange acknowledgement of a submitted order. OrderID is the
// only state carried from submission to fill polling.
type Order struct {
	OrderID  string
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Status   OrderStatus
}

type OrderStatusDetail struct {
	Status                  OrderStatus
	ExecutedQuantity        decimal.Decimal
	CumulativeQuoteQuantity decimal.Decimal
}
