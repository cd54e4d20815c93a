package entity

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ExchangeName string

const (
	ExchangeBinance ExchangeName = "binance"
)

// Exchange is the abstract client capability the executor consumes. The
// remote protocol (signing, rate limits, TLS) is the implementation's
// concern; the executor only sees this contract.
type Exchange interface {
	// FetchSymbolFilters returns the lot-size and notional constraints for a
	// pair. Fails with an ExchangeError of kind symbol-not-found when the
	// exchange has no such market.
	FetchSymbolFilters(ctx context.Context, pair TradingPair) (SymbolFilters, error)
	// FetchBalance returns the free balance of an asset. The second return is
	// false when the account holds no entry for the asset.
	FetchBalance(ctx context.Context, asset string) (decimal.Decimal, bool, error)
	FetchTickerPrice(ctx context.Context, pair TradingPair) (decimal.Decimal, error)
	SubmitLimitBuy(ctx context.Context, pair TradingPair, quantity, price decimal.Decimal) (*Order, error)
	SubmitMarketSell(ctx context.Context, pair TradingPair, quantity decimal.Decimal) (*Order, error)
	FetchOrderStatus(ctx context.Context, pair TradingPair, orderID string) (OrderStatusDetail, error)
}

type ExchangeErrorKind string

const (
	// ExchangeErrorTransport covers network failures and 5xx responses. Always
	// retryable under the eventual-consistency assumption.
	ExchangeErrorTransport ExchangeErrorKind = "transport"
	// ExchangeErrorRejected is a business-rule rejection (4xx). Retrying the
	// same request cannot succeed.
	ExchangeErrorRejected ExchangeErrorKind = "rejected"
	// ExchangeErrorSymbolNotFound means the pair does not exist. Fatal.
	ExchangeErrorSymbolNotFound ExchangeErrorKind = "symbol_not_found"
)

type ExchangeError struct {
	Kind    ExchangeErrorKind
	Code    int64
	Message string
	cause   error
}

func NewExchangeError(kind ExchangeErrorKind, code int64, message string) *ExchangeError {
	return &ExchangeError{Kind: kind, Code: code, Message: message}
}

func NewTransportError(cause error) *ExchangeError {
	return &ExchangeError{Kind: ExchangeErrorTransport, Message: cause.Error(), cause: cause}
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("exchange error (%s, code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange error (%s): %s", e.Kind, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.cause
}

// IsRetryable classifies an error at the collaborator boundary: transport
// failures and unclassified errors are retried, rejections and unknown
// symbols fail fast.
func IsRetryable(err error) bool {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		return exchangeErr.Kind == ExchangeErrorTransport
	}
	return true
}

func IsSymbolNotFound(err error) bool {
	var exchangeErr *ExchangeError
	return errors.As(err, &exchangeErr) && exchangeErr.Kind == ExchangeErrorSymbolNotFound
}

func IsRejected(err error) bool {
	var exchangeErr *ExchangeError
	return errors.As(err, &exchangeErr) && exchangeErr.Kind == ExchangeErrorRejected
}
