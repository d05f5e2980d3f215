package domain

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Status is the lifecycle status of an order as last reported (or assumed)
// for it. Unknown means a gateway call timed out and the true outcome has
// not been confirmed yet.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// Order represents a single limit order tracked by the engine.
// All monetary values are fixed-point int64.
type Order struct {
	ID           string // exchange-assigned id, empty until acknowledged
	ClientID     string // engine-assigned id correlating the async round-trip
	Symbol       string
	Side         Side
	Price        quant.PriceMicros
	Qty          quant.QtySats
	Status       Status
	CreatedUnixM int64 // Unix Microseconds
}

// IsOpen reports whether the order may still rest on the exchange.
// Unknown counts as open: it must be reconciled, never assumed closed.
func (o *Order) IsOpen() bool {
	return o.Status == StatusPending || o.Status == StatusUnknown
}
