package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SymbolFilters are the order-book constraints the exchange publishes for a
// pair. StepSize keeps the raw wire encoding ("0.00100000") because the tick
// exponent is derived from the string, not from its numeric value.
type SymbolFilters struct {
	StepSize    string          `json:"step_size"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// TickExponent derives the integer t such that legal order quantities are
// multiples of 10^-t. "0.00100000" -> 3, "1.00000000" -> 0,
// "100.00000000" -> -2.
func (f SymbolFilters) TickExponent() (int, error) {
	return TickExponent(f.StepSize)
}

func TickExponent(stepSize string) (int, error) {
	stepSize = strings.TrimSpace(stepSize)
	one := strings.Index(stepSize, "1")
	if one == -1 {
		return 0, fmt.Errorf("step size %q has no significant digit", stepSize)
	}

	if one == 0 {
		dot := strings.Index(stepSize, ".")
		if dot == -1 {
			dot = len(stepSize)
		}
		return 1 - dot, nil
	}

	return one - 1, nil
}
