package domain

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/safe"
)

// Position is the single long position the engine may hold. It is created
// exactly from a filled buy order's price/quantity, and the sell closing it
// must use exactly Qty, never a re-sized amount from the wallet balance.
type Position struct {
	Symbol      string
	EntryPrice  quant.PriceMicros
	Qty         quant.QtySats
	OpenedUnixM int64
}

// Notional returns the entry cost of the position in quote-currency micros.
func (p *Position) Notional() quant.PriceMicros {
	return quant.PriceMicros(safe.MulDiv(int64(p.EntryPrice), int64(p.Qty), quant.QtyScale))
}

// UnrealizedPnLMicros returns the mark-to-market PnL against the given price,
// gross of fees.
func (p *Position) UnrealizedPnLMicros(mark quant.PriceMicros) int64 {
	cur := safe.MulDiv(int64(mark), int64(p.Qty), quant.QtyScale)
	return safe.Sub(cur, int64(p.Notional()))
}
