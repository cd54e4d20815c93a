package exchange

import "github.com/halido/binance-trade-bot/internal/entity"

var (
	GlobalExchangeRegistry = make(map[entity.ExchangeName]entity.Exchange)
)

func RegisterExchange(name entity.ExchangeName, exchange entity.Exchange) {
	GlobalExchangeRegistry[name] = exchange
}

func LookupExchange(name entity.ExchangeName) (entity.Exchange, bool) {
	registered, ok := GlobalExchangeRegistry[name]
	return registered, ok
}
