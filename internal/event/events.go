package event

import (
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// Type defines the type of event.
type Type uint16

const (
	EvDepthDiff Type = iota + 1
	EvPricePoint
	EvTimer
	EvOrderResult
	EvOpenOrders
	EvBalance
	EvSnapshot
	EvHalt
)

// Event is the interface for everything flowing through the engine inbox.
// Events from all sources are processed strictly in arrival order.
type Event interface {
	GetSeq() uint64
	GetTs() quant.TimeStamp
	GetType() Type
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	Seq uint64          `json:"seq"`
	Ts  quant.TimeStamp `json:"ts"`
}

func (e BaseEvent) GetSeq() uint64         { return e.Seq }
func (e BaseEvent) GetTs() quant.TimeStamp { return e.Ts }

// DepthDiffEvent is one incremental order-book update from the depth stream.
type DepthDiffEvent struct {
	BaseEvent
	Symbol        string             `json:"symbol"`
	FirstUpdateID int64              `json:"first_update_id"`
	FinalUpdateID int64              `json:"final_update_id"`
	Bids          []domain.BookLevel `json:"bids"`
	Asks          []domain.BookLevel `json:"asks"`
}

func (e DepthDiffEvent) GetType() Type { return EvDepthDiff }

// PricePointEvent carries one close-price observation for the moving-average
// window (kline close or periodic mid-price sample).
type PricePointEvent struct {
	BaseEvent
	Symbol string            `json:"symbol"`
	Close  quant.PriceMicros `json:"close,string"`
}

func (e PricePointEvent) GetType() Type { return EvPricePoint }

// TimerEvent fires periodically for cooldown, stale-order and health checks.
type TimerEvent struct {
	BaseEvent
}

func (e TimerEvent) GetType() Type { return EvTimer }

// Outcome classifies how an asynchronous gateway round-trip ended.
type Outcome uint8

const (
	OutcomeOK Outcome = iota + 1
	OutcomeFailed
	// OutcomeUnknown means the call timed out. It must trigger reconciliation
	// and may never be assumed to be success or failure.
	OutcomeUnknown
)

// Op identifies which gateway call an OrderResultEvent answers.
type Op uint8

const (
	OpPlace Op = iota + 1
	OpCancel
)

// OrderResultEvent is the deferred response to a place/cancel intent. It is
// correlated by ClientID, never by "most recent intent".
type OrderResultEvent struct {
	BaseEvent
	ClientID  string  `json:"client_id"`
	Op        Op      `json:"op"`
	Outcome   Outcome `json:"outcome"`
	OrderID   string  `json:"order_id,omitempty"`
	Cancelled bool    `json:"cancelled,omitempty"` // result of a cancel call; a lost race means false
	Err       string  `json:"err,omitempty"`
}

func (e OrderResultEvent) GetType() Type { return EvOrderResult }

// OpenOrdersEvent is the deferred response to an open-orders query used for
// fill detection and reconciliation.
type OpenOrdersEvent struct {
	BaseEvent
	Orders []domain.Order `json:"orders"`
	Err    string         `json:"err,omitempty"`
}

func (e OpenOrdersEvent) GetType() Type { return EvOpenOrders }

// BalanceEvent is the deferred response to a quote-asset balance query.
type BalanceEvent struct {
	BaseEvent
	Asset string `json:"asset"`
	Free  string `json:"free"` // decimal string, parsed at use site
	Err   string `json:"err,omitempty"`
}

func (e BalanceEvent) GetType() Type { return EvBalance }

// SnapshotEvent is the deferred response to a REST depth-snapshot fetch,
// used to (re)build the local book after a gap or a crossed-book violation.
type SnapshotEvent struct {
	BaseEvent
	Snapshot domain.BookSnapshot `json:"snapshot"`
	Err      string              `json:"err,omitempty"`
}

func (e SnapshotEvent) GetType() Type { return EvSnapshot }

// HaltEvent stops the engine after a fatal error.
type HaltEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

func (e HaltEvent) GetType() Type { return EvHalt }
