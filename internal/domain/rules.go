package domain

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// ExchangeRules carries the per-symbol order constraints fetched from the
// exchange at startup. Quantities are floored to MinLotSize multiples and
// prices quantized to TickSize multiples before any order is placed.
type ExchangeRules struct {
	Symbol     string
	MinLotSize quant.QtySats
	TickSize   quant.PriceMicros
}

// Valid reports whether both increments are usable.
func (r ExchangeRules) Valid() bool {
	return r.MinLotSize > 0 && r.TickSize > 0
}
