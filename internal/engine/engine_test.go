package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/event"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/lifecycle"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

func testConfig() *infra.Config {
	cfg := &infra.Config{}
	cfg.Trading.Mode = "MOCK"
	cfg.Trading.Symbol = "BONKUSDT"
	cfg.Trading.QuoteAsset = "USDT"
	cfg.Trading.OrderAmountUSDT = "10"
	cfg.Trading.OrderBookDepth = 20
	cfg.Trading.MinProfitMargin = "0.002"
	cfg.Trading.DecimalPrecision = 6
	cfg.Trading.CooldownPeriodSec = 60
	cfg.Trading.SafetyProfitThreshold = "0.005"
	cfg.Trading.TradeFeePercent = "0.001"
	cfg.Trading.ShortWindow = 3
	cfg.Trading.LongWindow = 5
	cfg.Trading.SpreadTolerance = "0.05"
	cfg.Trading.OrderTimeoutSec = 5
	cfg.Trading.TimerIntervalSec = 1
	return cfg
}

var testRules = domain.ExchangeRules{
	Symbol:     "BONKUSDT",
	MinLotSize: 100_000_000, // one whole base unit
	TickSize:   1,           // one micro
}

// fakeClock lets tests move engine time explicitly.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) unixMicro() int64        { return c.t.UnixMicro() }
func (c *fakeClock) ts() quant.TimeStamp     { return quant.TimeStamp(c.t.UnixMicro()) }

func newTestEngine(t *testing.T, gw exchange.Gateway) (*Engine, *fakeClock) {
	t.Helper()
	e := New(testConfig(), gw, nil, testRules)
	clk := &fakeClock{t: time.UnixMicro(1_700_000_000_000_000)}
	e.now = clk.now
	return e, clk
}

func seedBook(t *testing.T, e *Engine, bid, ask quant.PriceMicros) {
	t.Helper()
	err := e.SeedBook(domain.BookSnapshot{
		Symbol:       "BONKUSDT",
		LastUpdateID: 100,
		Bids:         []domain.BookLevel{{Price: bid, Qty: 5_000_000_000}},
		Asks:         []domain.BookLevel{{Price: ask, Qty: 5_000_000_000}},
	})
	require.NoError(t, err)
}

// pump processes n asynchronous events from the inbox in arrival order.
func pump(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case ev := <-e.inbox:
			e.processEvent(ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for async event")
		}
	}
}

func pricePoint(e *Engine, clk *fakeClock, close quant.PriceMicros) event.PricePointEvent {
	return event.PricePointEvent{
		BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: clk.ts()},
		Symbol:    "BONKUSDT",
		Close:     close,
	}
}

func depthDiff(e *Engine, clk *fakeClock, first, final int64, bids, asks []domain.BookLevel) *event.DepthDiffEvent {
	ev := event.AcquireDepthDiffEvent()
	ev.Seq = quant.NextSeq(&e.seq)
	ev.Ts = clk.ts()
	ev.Symbol = "BONKUSDT"
	ev.FirstUpdateID = first
	ev.FinalUpdateID = final
	ev.Bids = append(ev.Bids, bids...)
	ev.Asks = append(ev.Asks, asks...)
	return ev
}

// Feeding a bullish crossover while flat must produce exactly one buy, and a
// gateway ack arriving after two intervening book diffs must still land on
// the original order by id.
func TestEngine_EntryAndLateAckByOrderID(t *testing.T) {
	mock := exchange.NewMock()
	var placed []domain.Order
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placed = append(placed, o)
		return "X-1", nil
	}

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 499_000, 500_000)

	// Declining closes warm the window with the short average below the long.
	for _, p := range []quant.PriceMicros{510_000, 505_000, 500_000, 495_000, 490_000} {
		e.processEvent(pricePoint(e, clk, p))
	}
	require.Equal(t, lifecycle.Idle, e.life.State())

	// Rising closes flip the relation: first balance refresh, then the buy.
	e.processEvent(pricePoint(e, clk, 520_000))
	e.processEvent(pricePoint(e, clk, 530_000))
	require.True(t, e.entrySignal || e.life.State() != lifecycle.Idle || e.balancePending,
		"bullish crossover should have armed the entry")

	pump(t, e, 1) // BalanceEvent; the follow-up tick places the buy
	require.Equal(t, lifecycle.BuyPlaced, e.life.State())

	// The place ack is still queued. Two book diffs arrive first.
	e.processEvent(depthDiff(e, clk, 101, 101,
		[]domain.BookLevel{{Price: 498_000, Qty: 1_000_000_000}}, nil))
	e.processEvent(depthDiff(e, clk, 102, 102,
		nil, []domain.BookLevel{{Price: 501_000, Qty: 1_000_000_000}}))

	pump(t, e, 1) // the late OrderResultEvent
	require.Len(t, placed, 1)
	assert.Equal(t, domain.Buy, placed[0].Side)
	assert.Equal(t, quant.PriceMicros(500_000), placed[0].Price)
	assert.Equal(t, quant.QtySats(2_000_000_000), placed[0].Qty) // 10 USDT / 0.50

	ord, ok := e.life.Order()
	require.True(t, ok)
	assert.Equal(t, "X-1", ord.ID, "ack must match by client id despite intervening diffs")
	assert.Equal(t, lifecycle.BuyPlaced, e.life.State())

	// The order leaves the open-orders poll: filled at the limit price.
	mock.OpenHook = func(symbol string) ([]domain.Order, error) { return nil, nil }
	e.processEvent(event.TimerEvent{BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: clk.ts()}})
	pump(t, e, 1) // OpenOrdersEvent

	require.Equal(t, lifecycle.PositionOpen, e.life.State())
	pos, ok := e.life.Position()
	require.True(t, ok)
	assert.Equal(t, quant.PriceMicros(500_000), pos.EntryPrice)
	assert.Equal(t, quant.QtySats(2_000_000_000), pos.Qty)
}

// Entry price 1.00 with a 0.005 safety threshold and the best bid at 0.990:
// the safety exit must fire even though the target-sell condition is false.
func TestEngine_SafetyExitPriority(t *testing.T) {
	mock := exchange.NewMock()
	var placed []domain.Order
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placed = append(placed, o)
		return "S-1", nil
	}

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 990_000, 1_010_000)

	openPosition(t, e, clk, 1_000_000, 2_000_000_000)

	e.tickStrategy()
	pump(t, e, 1) // place ack

	require.Len(t, placed, 1, "safety exit should have been placed")
	assert.Equal(t, domain.Sell, placed[0].Side)
	assert.Equal(t, quant.PriceMicros(990_000), placed[0].Price, "safety sell hits the bid")
	assert.Equal(t, quant.QtySats(2_000_000_000), placed[0].Qty, "closing sell uses the entry quantity")
	assert.Equal(t, lifecycle.SellPlaced, e.life.State())
}

// With the bid above the minimum qualifying sell price the engine places a
// target sell no lower than that price.
func TestEngine_TargetExit(t *testing.T) {
	mock := exchange.NewMock()
	var placed []domain.Order
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placed = append(placed, o)
		return "S-2", nil
	}

	e, clk := newTestEngine(t, mock)
	// minSell(1.00) = 1.003/0.999 rounded up = 1.004005
	seedBook(t, e, 1_005_000, 1_006_000)

	openPosition(t, e, clk, 1_000_000, 2_000_000_000)

	e.tickStrategy()
	pump(t, e, 1) // place ack

	require.Len(t, placed, 1)
	assert.Equal(t, domain.Sell, placed[0].Side)
	assert.Equal(t, quant.PriceMicros(1_004_005), placed[0].Price,
		"target sell never prices below the margin floor")
}

// No second buy may be emitted within the cooldown period of a sell fill.
func TestEngine_CooldownBlocksReentry(t *testing.T) {
	mock := exchange.NewMock()
	var placeCount int
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placeCount++
		return "B-2", nil
	}

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 499_000, 500_000)

	// Closed round trip just now.
	openPosition(t, e, clk, 500_000, 2_000_000_000)
	require.NoError(t, e.life.TrackSell(domain.Order{
		ClientID: "sell-1", Symbol: "BONKUSDT", Side: domain.Sell,
		Price: 505_000, Qty: 2_000_000_000, Status: domain.StatusPending,
		CreatedUnixM: clk.unixMicro(),
	}))
	e.life.OnAck("sell-1", "S-9")
	require.NoError(t, e.life.OnFill("S-9", clk.unixMicro()))
	require.Equal(t, lifecycle.Idle, e.life.State())

	// Entry fully armed, but inside the cooldown window.
	e.entrySignal = true
	e.balanceFresh = true
	e.freeBalance = mock.FreeBalance

	clk.advance(30 * time.Second)
	e.tickStrategy()
	assert.Zero(t, placeCount, "buy emitted inside cooldown")

	clk.advance(31 * time.Second) // past the 60s cooldown
	e.tickStrategy()
	pump(t, e, 1) // place ack
	assert.Equal(t, 1, placeCount, "buy expected after cooldown elapsed")
}

// While an order is tracked no second intent may be dispatched, whatever
// events interleave.
func TestEngine_AtMostOneOpenOrder(t *testing.T) {
	mock := exchange.NewMock()
	var placeCount int
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placeCount++
		return "B-1", nil
	}

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 499_000, 500_000)

	e.entrySignal = true
	e.balanceFresh = true
	e.freeBalance = mock.FreeBalance
	e.tickStrategy()
	require.Equal(t, lifecycle.BuyPlaced, e.life.State())
	pump(t, e, 1) // place ack
	require.Equal(t, 1, placeCount)

	// Interleave diffs and an armed signal; nothing further may be placed.
	e.entrySignal = true
	e.balanceFresh = true
	e.processEvent(depthDiff(e, clk, 101, 101,
		[]domain.BookLevel{{Price: 498_500, Qty: 1_000_000_000}}, nil))
	e.processEvent(depthDiff(e, clk, 102, 102,
		nil, []domain.BookLevel{{Price: 500_500, Qty: 1_000_000_000}}))
	e.tickStrategy()

	assert.Equal(t, 1, placeCount, "second intent dispatched while order tracked")
}

// A crossed book is a data-integrity failure: the engine must rebuild from a
// snapshot and reconcile before emitting anything else.
func TestEngine_CrossedBookRebuilds(t *testing.T) {
	mock := exchange.NewMock()
	mock.OpenHook = func(symbol string) ([]domain.Order, error) { return nil, nil }

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 499_000, 500_000)

	// A bid at the ask crosses the book.
	e.processEvent(depthDiff(e, clk, 101, 101,
		[]domain.BookLevel{{Price: 500_000, Qty: 1_000_000_000}}, nil))

	require.True(t, e.rebuilding)
	require.True(t, e.life.NeedsReconcile())

	pump(t, e, 2) // SnapshotEvent, then the reconciliation poll
	assert.False(t, e.rebuilding)
	assert.False(t, e.life.NeedsReconcile())
}

// An Unknown place outcome forces reconciliation before any further intent.
func TestEngine_UnknownOutcomeForcesReconcile(t *testing.T) {
	mock := exchange.NewMock()
	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 499_000, 500_000)

	require.NoError(t, e.life.TrackBuy(domain.Order{
		ClientID: "c-9", Symbol: "BONKUSDT", Side: domain.Buy,
		Price: 500_000, Qty: 2_000_000_000, Status: domain.StatusPending,
		CreatedUnixM: clk.unixMicro(),
	}, clk.unixMicro()))
	e.inflight = true
	e.inflightCID = "c-9"

	var placeCount int
	mock.PlaceHook = func(o domain.Order) (string, error) {
		placeCount++
		return "", nil
	}
	mock.OpenHook = func(symbol string) ([]domain.Order, error) {
		return []domain.Order{{
			ID: "X-9", ClientID: "c-9", Symbol: "BONKUSDT", Side: domain.Buy,
			Price: 500_000, Qty: 2_000_000_000, Status: domain.StatusPending,
		}}, nil
	}

	e.processEvent(event.OrderResultEvent{
		BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: clk.ts()},
		ClientID:  "c-9",
		Op:        event.OpPlace,
		Outcome:   event.OutcomeUnknown,
		Err:       "context deadline exceeded",
	})
	require.True(t, e.life.NeedsReconcile())

	pump(t, e, 1) // reconciliation poll answer
	assert.False(t, e.life.NeedsReconcile())

	// The exchange had it all along; the id is adopted, no duplicate placed.
	ord, ok := e.life.Order()
	require.True(t, ok)
	assert.Equal(t, "X-9", ord.ID)
	assert.Zero(t, placeCount)
}

// A cancel that loses its race to a fill must not be assumed cancelled.
func TestEngine_CancelLostRaceTrustsExchange(t *testing.T) {
	mock := exchange.NewMock()
	mock.OpenHook = func(symbol string) ([]domain.Order, error) { return nil, nil }

	e, clk := newTestEngine(t, mock)
	seedBook(t, e, 990_000, 1_010_000)

	require.NoError(t, e.life.TrackBuy(domain.Order{
		ClientID: "c-5", Symbol: "BONKUSDT", Side: domain.Buy,
		Price: 1_000_000, Qty: 2_000_000_000, Status: domain.StatusPending,
		CreatedUnixM: clk.unixMicro(),
	}, clk.unixMicro()))
	e.life.OnAck("c-5", "X-5")

	e.processEvent(event.OrderResultEvent{
		BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: clk.ts()},
		ClientID:  "c-5",
		Op:        event.OpCancel,
		Outcome:   event.OutcomeOK,
		OrderID:   "X-5",
		Cancelled: false, // fill won the race
	})

	require.True(t, e.life.NeedsReconcile(), "lost cancel race must trigger reconciliation")
	pump(t, e, 1) // poll: order gone, reconciliation treats it as filled
	assert.Equal(t, lifecycle.PositionOpen, e.life.State())
}

// openPosition walks the lifecycle to PositionOpen at the given entry.
func openPosition(t *testing.T, e *Engine, clk *fakeClock, entry quant.PriceMicros, qty quant.QtySats) {
	t.Helper()
	require.NoError(t, e.life.TrackBuy(domain.Order{
		ClientID: "buy-1", Symbol: "BONKUSDT", Side: domain.Buy,
		Price: entry, Qty: qty, Status: domain.StatusPending,
		CreatedUnixM: clk.unixMicro(),
	}, clk.unixMicro()))
	e.life.OnAck("buy-1", "B-9")
	require.NoError(t, e.life.OnFill("B-9", clk.unixMicro()))
	require.Equal(t, lifecycle.PositionOpen, e.life.State())
}
