package entity

import "strings"

// TradingPair is a two-asset market: the base asset priced in the quote asset.
type TradingPair struct {
	Base  string
	Quote string
}

func NewTradingPair(base, quote string) TradingPair {
	return TradingPair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

// Symbol returns the exchange market symbol, e.g. XLMBTC.
func (p TradingPair) Symbol() string {
	return p.Base + p.Quote
}

func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}
