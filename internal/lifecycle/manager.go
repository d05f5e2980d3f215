// Package lifecycle owns the order/position state machine. It tracks at
// most one live order and one position, and reconciles local intent against
// the exchange's authoritative open-orders view.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
)

// State is the lifecycle state. The machine has no terminal state; it
// cycles Idle -> BuyPlaced -> PositionOpen -> SellPlaced -> Idle forever.
type State int

const (
	Idle State = iota
	BuyPlaced
	PositionOpen
	SellPlaced
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case BuyPlaced:
		return "BUY_PLACED"
	case PositionOpen:
		return "POSITION_OPEN"
	case SellPlaced:
		return "SELL_PLACED"
	default:
		return "INVALID"
	}
}

var (
	ErrCooldownActive   = errors.New("lifecycle: cooldown has not elapsed")
	ErrOrderTracked     = errors.New("lifecycle: an order is already tracked")
	ErrBadTransition    = errors.New("lifecycle: transition not allowed in current state")
	ErrQtyMismatch      = errors.New("lifecycle: sell quantity must equal position quantity")
	ErrPendingReconcile = errors.New("lifecycle: reconciliation required first")
)

// Manager is mutated only by the engine goroutine.
type Manager struct {
	symbol   string
	cooldown time.Duration

	state    State
	order    *domain.Order
	position *domain.Position

	lastTradeClosedUnixM int64
	needsReconcile       bool
}

// NewManager starts in Idle with no cooldown pending.
func NewManager(symbol string, cooldown time.Duration) *Manager {
	return &Manager{symbol: symbol, cooldown: cooldown}
}

func (m *Manager) State() State { return m.state }

// Order returns a copy of the tracked order.
func (m *Manager) Order() (domain.Order, bool) {
	if m.order == nil {
		return domain.Order{}, false
	}
	return *m.order, true
}

// Position returns a copy of the open position.
func (m *Manager) Position() (domain.Position, bool) {
	if m.position == nil {
		return domain.Position{}, false
	}
	return *m.position, true
}

// NeedsReconcile reports whether an Unknown outcome or detected desync is
// pending. No new intent may be emitted until Reconcile runs.
func (m *Manager) NeedsReconcile() bool { return m.needsReconcile }

// CooldownElapsed reports whether enough time has passed since the last
// closed trade to enter again.
func (m *Manager) CooldownElapsed(nowUnixM int64) bool {
	if m.lastTradeClosedUnixM == 0 {
		return true
	}
	return nowUnixM-m.lastTradeClosedUnixM >= m.cooldown.Microseconds()
}

// LastTradeClosedUnixM returns when the previous round trip closed, zero if
// none has.
func (m *Manager) LastTradeClosedUnixM() int64 { return m.lastTradeClosedUnixM }

// TrackBuy transitions Idle -> BuyPlaced. Only legal when no order is
// tracked, the cooldown has elapsed and no reconciliation is pending.
func (m *Manager) TrackBuy(o domain.Order, nowUnixM int64) error {
	if m.needsReconcile {
		return ErrPendingReconcile
	}
	if m.state != Idle {
		return fmt.Errorf("%w: TrackBuy in %s", ErrBadTransition, m.state)
	}
	if m.order != nil {
		return ErrOrderTracked
	}
	if !m.CooldownElapsed(nowUnixM) {
		return ErrCooldownActive
	}
	o.Side = domain.Buy
	o.Status = domain.StatusPending
	m.order = &o
	m.state = BuyPlaced
	return nil
}

// TrackSell transitions PositionOpen -> SellPlaced. The sell must close the
// position exactly: same quantity, no re-sizing from wallet balance.
func (m *Manager) TrackSell(o domain.Order) error {
	if m.needsReconcile {
		return ErrPendingReconcile
	}
	if m.state != PositionOpen || m.position == nil {
		return fmt.Errorf("%w: TrackSell in %s", ErrBadTransition, m.state)
	}
	if m.order != nil {
		return ErrOrderTracked
	}
	if o.Qty != m.position.Qty {
		return ErrQtyMismatch
	}
	o.Side = domain.Sell
	o.Status = domain.StatusPending
	m.order = &o
	m.state = SellPlaced
	return nil
}

// OnAck records the exchange-assigned id for the tracked order, matched by
// client id. Acks for unknown client ids are ignored.
func (m *Manager) OnAck(clientID, orderID string) {
	if m.order != nil && m.order.ClientID == clientID {
		m.order.ID = orderID
	}
}

// OnFill applies a fill for the given order id. Results are matched by id,
// never by "most recent intent": a late response after intervening events
// still lands on the right order.
func (m *Manager) OnFill(orderID string, nowUnixM int64) error {
	if m.order == nil || !m.matches(orderID) {
		return fmt.Errorf("lifecycle: fill for untracked order %q", orderID)
	}

	switch m.state {
	case BuyPlaced:
		m.position = &domain.Position{
			Symbol:      m.order.Symbol,
			EntryPrice:  m.order.Price,
			Qty:         m.order.Qty,
			OpenedUnixM: nowUnixM,
		}
		m.order = nil
		m.state = PositionOpen
	case SellPlaced:
		m.order = nil
		m.position = nil
		m.lastTradeClosedUnixM = nowUnixM
		m.state = Idle
	default:
		return fmt.Errorf("%w: fill in %s", ErrBadTransition, m.state)
	}
	return nil
}

// OnCancelled applies a confirmed cancellation: BuyPlaced returns to Idle,
// SellPlaced returns to PositionOpen for a retry.
func (m *Manager) OnCancelled(orderID string) error {
	if m.order == nil || !m.matches(orderID) {
		return fmt.Errorf("lifecycle: cancel for untracked order %q", orderID)
	}

	switch m.state {
	case BuyPlaced:
		m.order = nil
		m.state = Idle
	case SellPlaced:
		m.order = nil
		m.state = PositionOpen
	default:
		return fmt.Errorf("%w: cancel in %s", ErrBadTransition, m.state)
	}
	return nil
}

// MarkUnknown flags the tracked order (if any) as Unknown outcome and
// demands reconciliation before any further intent.
func (m *Manager) MarkUnknown() {
	if m.order != nil {
		m.order.Status = domain.StatusUnknown
	}
	m.needsReconcile = true
}

// RequireReconcile demands reconciliation without touching the order, used
// for desyncs detected outside the lifecycle (e.g. a crossed book).
func (m *Manager) RequireReconcile() { m.needsReconcile = true }

// Reconcile rewrites local state from the exchange's authoritative
// open-orders view. Rules:
//   - tracked order present in the open list: still pending, keep waiting.
//   - tracked order with a known exchange id absent from the list: it left
//     the book; with only an open-orders query that means filled.
//   - tracked order never acknowledged (no exchange id) and absent: the
//     place never landed; roll back the transition.
//   - untracked open order on our symbol: adopt it so at most one live
//     order stays true.
func (m *Manager) Reconcile(open []domain.Order, nowUnixM int64) error {
	defer func() { m.needsReconcile = false }()

	if m.order != nil {
		for _, o := range open {
			if o.ID == m.order.ID || (o.ClientID != "" && o.ClientID == m.order.ClientID) {
				m.order.ID = o.ID
				m.order.Status = domain.StatusPending
				return nil
			}
		}

		if m.order.ID == "" {
			// Never acknowledged and not on the exchange: undo the placement.
			switch m.state {
			case BuyPlaced:
				m.order = nil
				m.state = Idle
			case SellPlaced:
				m.order = nil
				m.state = PositionOpen
			}
			return nil
		}
		return m.OnFill(m.order.ID, nowUnixM)
	}

	for _, o := range open {
		if o.Symbol != m.symbol {
			continue
		}
		adopted := o
		adopted.Status = domain.StatusPending
		m.order = &adopted
		if o.Side == domain.Buy {
			m.state = BuyPlaced
		} else {
			m.state = SellPlaced
			if m.position == nil {
				// A resting sell implies a position we lost track of.
				m.position = &domain.Position{
					Symbol:      o.Symbol,
					EntryPrice:  o.Price,
					Qty:         o.Qty,
					OpenedUnixM: nowUnixM,
				}
			}
		}
		return nil
	}
	return nil
}

// OrderAge returns how long the tracked order has been resting.
func (m *Manager) OrderAge(nowUnixM int64) (time.Duration, bool) {
	if m.order == nil {
		return 0, false
	}
	return time.Duration(nowUnixM-m.order.CreatedUnixM) * time.Microsecond, true
}

func (m *Manager) matches(orderID string) bool {
	return m.order != nil && (m.order.ID == orderID || m.order.ClientID == orderID)
}
