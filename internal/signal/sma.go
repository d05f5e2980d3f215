// Package signal derives short/long moving averages from a bounded window of
// close prices and detects genuine crossovers.
package signal

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/safe"
)

// PricePoint is one close-price observation.
type PricePoint struct {
	Ts    quant.TimeStamp
	Close quant.PriceMicros
}

// Crossover is the edge-triggered signal output.
type Crossover int

const (
	None Crossover = iota
	Bullish
	Bearish
)

func (c Crossover) String() string {
	switch c {
	case Bullish:
		return "BULLISH"
	case Bearish:
		return "BEARISH"
	default:
		return "NONE"
	}
}

// Relation is where the short average sits relative to the long average. It
// is what turns a level condition into an edge: a Bullish result requires
// the previous relation to have been ShortBelow.
type Relation int

const (
	RelationUnknown Relation = iota
	ShortAbove
	ShortBelow
)

// MovingAverage keeps a ring buffer of the last longPeriod closes with a
// running sum, so every tick is O(shortPeriod) with zero allocations.
type MovingAverage struct {
	shortPeriod int
	longPeriod  int

	prices []int64
	head   int   // next write position; when full it points at the oldest value
	count  int
	sum    int64 // running sum over the long window

	relation Relation
}

// NewMovingAverage creates the signal state. shortPeriod must be strictly
// less than longPeriod.
func NewMovingAverage(shortPeriod, longPeriod int) *MovingAverage {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		panic("signal: shortPeriod must be positive and less than longPeriod")
	}
	return &MovingAverage{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make([]int64, longPeriod),
		relation:    RelationUnknown,
	}
}

// Ingest appends one close price, evicting the oldest beyond the window.
func (s *MovingAverage) Ingest(p PricePoint) {
	if s.count == s.longPeriod {
		s.sum = safe.Sub(s.sum, s.prices[s.head])
	}
	s.prices[s.head] = int64(p.Close)
	s.sum = safe.Add(s.sum, int64(p.Close))
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}
}

// Warm reports whether the long window is full.
func (s *MovingAverage) Warm() bool { return s.count == s.longPeriod }

// Values returns the current short and long averages. ok is false until the
// window is warm.
func (s *MovingAverage) Values() (short, long quant.PriceMicros, ok bool) {
	if !s.Warm() {
		return 0, 0, false
	}
	return quant.PriceMicros(s.shortSMA()), quant.PriceMicros(safe.Div(s.sum, int64(s.longPeriod))), true
}

// Crossover recomputes both averages and compares the current relation to
// the previous one. It returns Bullish only on a below-to-above transition
// and Bearish only on above-to-below; the stored relation is updated
// unconditionally, so the same cross never fires twice.
func (s *MovingAverage) Crossover() Crossover {
	short, long, ok := s.Values()
	if !ok {
		return None
	}

	curr := ShortBelow
	if short > long {
		curr = ShortAbove
	}

	prev := s.relation
	s.relation = curr

	switch {
	case prev == ShortBelow && curr == ShortAbove:
		return Bullish
	case prev == ShortAbove && curr == ShortBelow:
		return Bearish
	default:
		return None
	}
}

// shortSMA walks the ring backwards from the latest write.
func (s *MovingAverage) shortSMA() int64 {
	var sum int64
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = safe.Add(sum, s.prices[idx])
	}
	return safe.Div(sum, int64(s.shortPeriod))
}
