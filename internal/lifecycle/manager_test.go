package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
)

func buyOrder(clientID string) domain.Order {
	return domain.Order{
		ClientID: clientID,
		Symbol:   "BONKUSDT",
		Side:     domain.Buy,
		Price:    18,
		Qty:      1_000_000,
	}
}

func TestFullCycle(t *testing.T) {
	m := NewManager("BONKUSDT", 30*time.Second)
	now := int64(1_000_000)

	require.Equal(t, Idle, m.State())

	// Idle -> BuyPlaced
	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	require.Equal(t, BuyPlaced, m.State())
	m.OnAck("c1", "ex-1")

	// BuyPlaced -> PositionOpen
	require.NoError(t, m.OnFill("ex-1", now+1))
	require.Equal(t, PositionOpen, m.State())

	pos, ok := m.Position()
	require.True(t, ok)
	assert.EqualValues(t, 18, pos.EntryPrice)
	assert.EqualValues(t, 1_000_000, pos.Qty)

	// PositionOpen -> SellPlaced, exact position quantity
	sell := domain.Order{ClientID: "c2", Symbol: "BONKUSDT", Price: 20, Qty: pos.Qty}
	require.NoError(t, m.TrackSell(sell))
	m.OnAck("c2", "ex-2")
	require.Equal(t, SellPlaced, m.State())

	// SellPlaced -> Idle, cooldown starts
	closedAt := now + 500
	require.NoError(t, m.OnFill("ex-2", closedAt))
	require.Equal(t, Idle, m.State())
	assert.Equal(t, closedAt, m.LastTradeClosedUnixM())

	_, ok = m.Position()
	assert.False(t, ok, "position must be discarded after the closing fill")
}

func TestTrackBuy_Guards(t *testing.T) {
	m := NewManager("BONKUSDT", 30*time.Second)
	now := int64(1_000_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))

	// At most one live order, ever.
	err := m.TrackBuy(buyOrder("c2"), now)
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestCooldownBlocksReentry(t *testing.T) {
	cooldown := 30 * time.Second
	m := NewManager("BONKUSDT", cooldown)
	now := int64(1_000_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")
	require.NoError(t, m.OnFill("ex-1", now))
	require.NoError(t, m.TrackSell(domain.Order{ClientID: "c2", Symbol: "BONKUSDT", Qty: 1_000_000}))
	m.OnAck("c2", "ex-2")
	require.NoError(t, m.OnFill("ex-2", now))

	// Within the cooldown no second buy may be tracked.
	within := now + cooldown.Microseconds() - 1
	assert.ErrorIs(t, m.TrackBuy(buyOrder("c3"), within), ErrCooldownActive)

	// At the boundary it is allowed again.
	assert.NoError(t, m.TrackBuy(buyOrder("c3"), now+cooldown.Microseconds()))
}

func TestSellQtyMustMatchPosition(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")
	require.NoError(t, m.OnFill("ex-1", now))

	err := m.TrackSell(domain.Order{ClientID: "c2", Symbol: "BONKUSDT", Qty: 999_999})
	assert.ErrorIs(t, err, ErrQtyMismatch)
}

func TestSellCancelledRetries(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")
	require.NoError(t, m.OnFill("ex-1", now))
	require.NoError(t, m.TrackSell(domain.Order{ClientID: "c2", Symbol: "BONKUSDT", Qty: 1_000_000}))
	m.OnAck("c2", "ex-2")

	// Cancel returns to PositionOpen with the position intact, for a retry.
	require.NoError(t, m.OnCancelled("ex-2"))
	assert.Equal(t, PositionOpen, m.State())
	_, ok := m.Position()
	assert.True(t, ok)
}

// A fill response arriving late, after unrelated events, must still apply
// by order id.
func TestLateFillMatchesByOrderID(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")

	// Fill for some other id is rejected, state unchanged.
	require.Error(t, m.OnFill("ex-999", now+2))
	assert.Equal(t, BuyPlaced, m.State())

	// The real fill still lands.
	require.NoError(t, m.OnFill("ex-1", now+3))
	assert.Equal(t, PositionOpen, m.State())
}

func TestMarkUnknownForcesReconcile(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.MarkUnknown()

	require.True(t, m.NeedsReconcile())
	o, _ := m.Order()
	assert.Equal(t, domain.StatusUnknown, o.Status)
	assert.True(t, o.IsOpen(), "unknown outcome may never be assumed closed")

	// No new intent before reconciliation.
	assert.ErrorIs(t, m.TrackSell(domain.Order{}), ErrPendingReconcile)
}

func TestReconcile_TrackedOrderStillOpen(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")
	m.MarkUnknown()

	open := []domain.Order{{ID: "ex-1", ClientID: "c1", Symbol: "BONKUSDT", Side: domain.Buy}}
	require.NoError(t, m.Reconcile(open, now+10))

	assert.False(t, m.NeedsReconcile())
	assert.Equal(t, BuyPlaced, m.State())
	o, _ := m.Order()
	assert.Equal(t, domain.StatusPending, o.Status)
}

func TestReconcile_AckedOrderGoneMeansFilled(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.OnAck("c1", "ex-1")
	m.MarkUnknown()

	require.NoError(t, m.Reconcile(nil, now+10))
	assert.Equal(t, PositionOpen, m.State())
}

func TestReconcile_UnackedOrderGoneRollsBack(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	// Place timed out before any ack: no exchange id.
	require.NoError(t, m.TrackBuy(buyOrder("c1"), now))
	m.MarkUnknown()

	require.NoError(t, m.Reconcile(nil, now+10))
	assert.Equal(t, Idle, m.State())
	_, ok := m.Order()
	assert.False(t, ok)
}

func TestReconcile_AdoptsForeignOpenOrder(t *testing.T) {
	m := NewManager("BONKUSDT", time.Second)
	now := int64(1_000_000)

	// Startup reconciliation finds a resting sell we did not place this run.
	open := []domain.Order{{ID: "ex-7", Symbol: "BONKUSDT", Side: domain.Sell, Price: 21, Qty: 500}}
	require.NoError(t, m.Reconcile(open, now))

	assert.Equal(t, SellPlaced, m.State())
	pos, ok := m.Position()
	require.True(t, ok, "a resting sell implies a position")
	assert.EqualValues(t, 500, pos.Qty)
}
