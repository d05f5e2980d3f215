package domain

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// BookLevel is one price level of the order book. Qty == 0 in a diff means
// the level was removed.
type BookLevel struct {
	Price quant.PriceMicros `json:"price,string"`
	Qty   quant.QtySats     `json:"qty,string"`
}

// BookSnapshot is a full depth snapshot fetched over REST, used to seed or
// rebuild the local book.
type BookSnapshot struct {
	Symbol       string      `json:"symbol"`
	LastUpdateID int64       `json:"last_update_id"`
	Bids         []BookLevel `json:"bids"` // price descending
	Asks         []BookLevel `json:"asks"` // price ascending
}
