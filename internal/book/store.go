// Package book maintains the local view of the exchange order book from
// streamed incremental updates.
package book

import (
	"errors"
	"sort"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// ErrCrossedBook means bestBid >= bestAsk after applying a diff. The local
// book is untrustworthy at that point and must be rebuilt from a fresh
// REST snapshot before any further trading decision.
var ErrCrossedBook = errors.New("book: crossed book, best bid >= best ask")

// Store holds the current bid/ask depth for a single symbol. It is mutated
// only by the engine goroutine; no locking here.
type Store struct {
	symbol       string
	bids         []domain.BookLevel // price descending
	asks         []domain.BookLevel // price ascending
	lastUpdateID int64
	staleDrops   uint64
}

// NewStore creates an empty book for the symbol.
func NewStore(symbol string) *Store {
	return &Store{symbol: symbol}
}

// Symbol returns the symbol this book tracks.
func (s *Store) Symbol() string { return s.symbol }

// LastUpdateID returns the id of the last applied update.
func (s *Store) LastUpdateID() int64 { return s.lastUpdateID }

// StaleDrops returns how many diffs were discarded as stale.
func (s *Store) StaleDrops() uint64 { return s.staleDrops }

// Ready reports whether both sides have at least one level.
func (s *Store) Ready() bool {
	return len(s.bids) > 0 && len(s.asks) > 0
}

// LoadSnapshot replaces the whole book with a REST snapshot and resets the
// update id watermark.
func (s *Store) LoadSnapshot(snap domain.BookSnapshot) error {
	s.bids = append(s.bids[:0], snap.Bids...)
	s.asks = append(s.asks[:0], snap.Asks...)
	sort.Slice(s.bids, func(i, j int) bool { return s.bids[i].Price > s.bids[j].Price })
	sort.Slice(s.asks, func(i, j int) bool { return s.asks[i].Price < s.asks[j].Price })
	s.lastUpdateID = snap.LastUpdateID
	if s.crossed() {
		return ErrCrossedBook
	}
	return nil
}

// ApplyDiff merges one incremental update. Diffs whose final id is not
// strictly greater than the last applied id are silently dropped as stale.
// A crossed book after application returns ErrCrossedBook.
func (s *Store) ApplyDiff(finalUpdateID int64, bids, asks []domain.BookLevel) error {
	if finalUpdateID <= s.lastUpdateID {
		s.staleDrops++
		return nil
	}

	for _, lvl := range bids {
		s.bids = mergeLevel(s.bids, lvl, func(a, b quant.PriceMicros) bool { return a > b })
	}
	for _, lvl := range asks {
		s.asks = mergeLevel(s.asks, lvl, func(a, b quant.PriceMicros) bool { return a < b })
	}
	s.lastUpdateID = finalUpdateID

	if s.crossed() {
		return ErrCrossedBook
	}
	return nil
}

// BestBid returns the highest bid level.
func (s *Store) BestBid() (domain.BookLevel, bool) {
	if len(s.bids) == 0 {
		return domain.BookLevel{}, false
	}
	return s.bids[0], true
}

// BestAsk returns the lowest ask level.
func (s *Store) BestAsk() (domain.BookLevel, bool) {
	if len(s.asks) == 0 {
		return domain.BookLevel{}, false
	}
	return s.asks[0], true
}

// Spread returns bestAsk - bestBid.
func (s *Store) Spread() (quant.PriceMicros, bool) {
	if !s.Ready() {
		return 0, false
	}
	return s.asks[0].Price - s.bids[0].Price, true
}

// Depth returns up to n levels per side, copied so callers cannot alias the
// store's slices across ticks.
func (s *Store) Depth(n int) (bids, asks []domain.BookLevel) {
	if n > len(s.bids) {
		bids = append(bids, s.bids...)
	} else {
		bids = append(bids, s.bids[:n]...)
	}
	if n > len(s.asks) {
		asks = append(asks, s.asks...)
	} else {
		asks = append(asks, s.asks[:n]...)
	}
	return bids, asks
}

func (s *Store) crossed() bool {
	return len(s.bids) > 0 && len(s.asks) > 0 && s.bids[0].Price >= s.asks[0].Price
}

// mergeLevel inserts, replaces or removes (qty == 0) one level, keeping the
// side sorted by `before` with no duplicate prices.
func mergeLevel(side []domain.BookLevel, lvl domain.BookLevel, before func(a, b quant.PriceMicros) bool) []domain.BookLevel {
	i := sort.Search(len(side), func(i int) bool {
		return !before(side[i].Price, lvl.Price)
	})

	exists := i < len(side) && side[i].Price == lvl.Price

	switch {
	case lvl.Qty == 0 && exists:
		return append(side[:i], side[i+1:]...)
	case lvl.Qty == 0:
		return side // removing an absent level is a no-op
	case exists:
		side[i].Qty = lvl.Qty
		return side
	default:
		side = append(side, domain.BookLevel{})
		copy(side[i+1:], side[i:])
		side[i] = lvl
		return side
	}
}
