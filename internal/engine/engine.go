// Package engine holds the strategy event loop: one goroutine consuming one
// ordered inbox, reading the book, the moving averages and the lifecycle
// state machine, and emitting at most one exchange intent per tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/book"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/calc"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/event"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/lifecycle"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/signal"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/storage"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/safe"
)

// ErrHalted is wrapped into the error Run returns after a fatal condition.
var ErrHalted = errors.New("engine: halted")

// Engine is the single-threaded strategy core. All fields below the inbox
// are touched only by the Run goroutine; external actors communicate
// exclusively through the inbox channel.
type Engine struct {
	cfg     *infra.Config
	gateway exchange.Gateway
	journal *storage.Journal // optional, nil in tests and MOCK quickstarts

	inbox chan event.Event
	seq   uint64

	book *book.Store
	ma   *signal.MovingAverage
	calc *calc.Calculator
	life *lifecycle.Manager

	rules domain.ExchangeRules
	tick  decimal.Decimal
	step  decimal.Decimal

	// Decision state, loop-goroutine only.
	entrySignal    bool
	inflight       bool
	inflightCID    string
	pollPending    bool
	balancePending bool
	rebuilding     bool
	needRebuild    bool
	requoted       bool
	halted         bool
	haltReason     string

	freeBalance  decimal.Decimal
	balanceFresh bool

	callTimeout time.Duration

	now func() time.Time
}

// New builds an engine from the validated configuration and the symbol's
// exchange rules.
func New(cfg *infra.Config, gw exchange.Gateway, journal *storage.Journal, rules domain.ExchangeRules) *Engine {
	if !rules.Valid() {
		panic(fmt.Sprintf("engine: invalid exchange rules %+v", rules))
	}

	return &Engine{
		cfg:     cfg,
		gateway: gw,
		journal: journal,
		inbox:   make(chan event.Event, 1024),
		book:    book.NewStore(cfg.Trading.Symbol),
		ma:      signal.NewMovingAverage(cfg.Trading.ShortWindow, cfg.Trading.LongWindow),
		calc: calc.New(
			cfg.TradeFeePercent(),
			cfg.MinProfitMargin(),
			cfg.SafetyProfitThreshold(),
			cfg.Trading.DecimalPrecision,
		),
		life:        lifecycle.NewManager(cfg.Trading.Symbol, cfg.CooldownPeriod()),
		rules:       rules,
		tick:        rules.TickSize.Decimal(),
		step:        rules.MinLotSize.Decimal(),
		callTimeout: cfg.OrderTimeout(),
		now:         time.Now,
	}
}

// Inbox is where workers push events. The engine never reads anything else.
func (e *Engine) Inbox() chan<- event.Event { return e.inbox }

// Seq exposes the shared sequence counter for event producers.
func (e *Engine) Seq() *uint64 { return &e.seq }

// WarmSignal preloads historical closes into the moving-average window so
// the first live tick can already evaluate a crossover.
func (e *Engine) WarmSignal(points []signal.PricePoint) {
	for _, p := range points {
		e.ma.Ingest(p)
		e.ma.Crossover()
	}
	slog.Info("signal warmed", slog.Int("points", len(points)), slog.Bool("warm", e.ma.Warm()))
}

// SeedBook loads the initial REST depth snapshot.
func (e *Engine) SeedBook(snap domain.BookSnapshot) error {
	return e.book.LoadSnapshot(snap)
}

// Run consumes the inbox until the context ends or a fatal condition halts
// the engine. It must be the only goroutine calling into the book, signal
// and lifecycle state.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine started",
		slog.String("symbol", e.cfg.Trading.Symbol),
		slog.String("mode", e.cfg.Trading.Mode))

	ticker := time.NewTicker(e.cfg.TimerInterval())
	defer ticker.Stop()

	e.life.RequireReconcile() // startup reconciliation before any intent

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopping")
			return ctx.Err()
		case now := <-ticker.C:
			e.processEvent(event.TimerEvent{BaseEvent: event.BaseEvent{
				Seq: quant.NextSeq(&e.seq),
				Ts:  quant.TimeStamp(now.UnixMicro()),
			}})
		case ev := <-e.inbox:
			e.processEvent(ev)
		}
		if e.halted {
			return fmt.Errorf("%w: %s", ErrHalted, e.haltReason)
		}
	}
}

// processEvent dispatches one event and then runs exactly one strategy tick.
func (e *Engine) processEvent(ev event.Event) {
	switch ev := ev.(type) {
	case *event.DepthDiffEvent:
		e.handleDepthDiff(ev)
		event.ReleaseDepthDiffEvent(ev)
	case event.PricePointEvent:
		e.ingestClose(signal.PricePoint{Ts: ev.Ts, Close: ev.Close})
	case event.TimerEvent:
		e.handleTimer(ev)
	case event.OrderResultEvent:
		e.handleOrderResult(ev)
	case event.OpenOrdersEvent:
		e.handleOpenOrders(ev)
	case event.BalanceEvent:
		e.handleBalance(ev)
	case event.SnapshotEvent:
		e.handleSnapshot(ev)
	case event.HaltEvent:
		e.halt(ev.Reason)
	default:
		slog.Warn("unknown event type", slog.Any("type", ev.GetType()))
	}

	e.tickStrategy()
}

func (e *Engine) handleDepthDiff(ev *event.DepthDiffEvent) {
	if e.rebuilding || ev.Symbol != e.book.Symbol() {
		return
	}
	if !e.book.Ready() {
		return // waiting for the seed snapshot
	}

	// A diff that skips update ids means we lost stream messages; the local
	// book can no longer be trusted.
	if ev.FirstUpdateID > e.book.LastUpdateID()+1 {
		slog.Warn("depth gap detected",
			slog.Int64("book_id", e.book.LastUpdateID()),
			slog.Int64("first_update_id", ev.FirstUpdateID))
		e.rebuildBook()
		return
	}

	if err := e.book.ApplyDiff(ev.FinalUpdateID, ev.Bids, ev.Asks); err != nil {
		if errors.Is(err, book.ErrCrossedBook) {
			slog.Error("crossed book, rebuilding from snapshot")
			e.rebuildBook()
			return
		}
		slog.Warn("diff rejected", slog.String("err", err.Error()))
	}
}

// ingestClose feeds one close price to the moving averages and latches the
// entry signal on a bullish crossover. Bearish clears any pending signal.
func (e *Engine) ingestClose(p signal.PricePoint) {
	e.ma.Ingest(p)
	switch e.ma.Crossover() {
	case signal.Bullish:
		slog.Info("bullish crossover", slog.String("close", p.Close.String()))
		e.entrySignal = true
	case signal.Bearish:
		e.entrySignal = false
	}
}

func (e *Engine) handleTimer(ev event.TimerEvent) {
	nowM := int64(ev.Ts)

	// Mid-price sample keeps the signal moving between kline closes.
	if bid, okB := e.book.BestBid(); okB {
		if ask, okA := e.book.BestAsk(); okA {
			mid := quant.PriceMicros(safe.Add(int64(bid.Price), int64(ask.Price)) / 2)
			e.ingestClose(signal.PricePoint{Ts: ev.Ts, Close: mid})
		}
	}

	if e.needRebuild && !e.rebuilding {
		e.rebuildBook()
	}

	// Stale pending order beyond the timeout gets cancelled.
	if ord, ok := e.life.Order(); ok && ord.Status == domain.StatusPending && ord.ID != "" && !e.inflight {
		if age, ok := e.life.OrderAge(nowM); ok && age > e.cfg.OrderTimeout() {
			slog.Warn("order stale, cancelling",
				slog.String("id", ord.ID),
				slog.Duration("age", age))
			e.dispatchCancel(ord)
			return
		}
	}

	// Fill detection: while an order rests we poll open orders each timer
	// tick; an acknowledged order absent from the poll has filled.
	st := e.life.State()
	if (st == lifecycle.BuyPlaced || st == lifecycle.SellPlaced || e.life.NeedsReconcile()) && !e.pollPending {
		e.dispatchOpenOrdersPoll()
	}

	// Keep the quote balance fresh while flat.
	if st == lifecycle.Idle && !e.balancePending {
		e.dispatchBalanceQuery()
	}
}

func (e *Engine) handleOrderResult(ev event.OrderResultEvent) {
	if ev.ClientID == e.inflightCID {
		e.inflight = false
		e.inflightCID = ""
	}

	switch ev.Op {
	case event.OpPlace:
		e.handlePlaceResult(ev)
	case event.OpCancel:
		e.handleCancelResult(ev)
	}
}

func (e *Engine) handlePlaceResult(ev event.OrderResultEvent) {
	switch ev.Outcome {
	case event.OutcomeOK:
		e.life.OnAck(ev.ClientID, ev.OrderID)
		e.requoted = false
		slog.Info("order acknowledged",
			slog.String("client_id", ev.ClientID),
			slog.String("id", ev.OrderID))

	case event.OutcomeFailed:
		if err := e.life.OnCancelled(ev.ClientID); err != nil {
			slog.Warn("rollback failed", slog.String("err", err.Error()))
		}
		switch {
		case errIs(ev.Err, exchange.ErrAuth), errIs(ev.Err, exchange.ErrUnknownSymbol):
			e.halt("place rejected fatally: " + ev.Err)
		case errIs(ev.Err, exchange.ErrInvalidLotSize) && !e.requoted:
			// Re-quantize once with fresh book data and retry next tick.
			e.requoted = true
			e.entrySignal = true
			slog.Warn("lot/tick rejected, re-quantizing once", slog.String("err", ev.Err))
		case errIs(ev.Err, exchange.ErrRateLimited):
			slog.Warn("place rate limited, will retry", slog.String("err", ev.Err))
			e.entrySignal = true
		default:
			slog.Warn("place rejected", slog.String("err", ev.Err))
		}

	case event.OutcomeUnknown:
		slog.Warn("place outcome unknown, forcing reconciliation",
			slog.String("client_id", ev.ClientID))
		e.life.MarkUnknown()
	}
}

func (e *Engine) handleCancelResult(ev event.OrderResultEvent) {
	switch ev.Outcome {
	case event.OutcomeOK:
		if ev.Cancelled {
			if err := e.life.OnCancelled(ev.OrderID); err != nil {
				slog.Warn("cancel bookkeeping failed", slog.String("err", err.Error()))
			}
			return
		}
		// The cancel lost a race, most likely to a fill. The poll decides.
		slog.Info("cancel lost race", slog.String("id", ev.OrderID))
		e.life.RequireReconcile()

	case event.OutcomeFailed:
		if errIs(ev.Err, exchange.ErrAuth) {
			e.halt("cancel rejected fatally: " + ev.Err)
			return
		}
		e.life.RequireReconcile()

	case event.OutcomeUnknown:
		e.life.MarkUnknown()
	}
}

func (e *Engine) handleOpenOrders(ev event.OpenOrdersEvent) {
	e.pollPending = false
	if ev.Err != "" {
		slog.Warn("open-orders poll failed", slog.String("err", ev.Err))
		return
	}

	nowM := e.now().UnixMicro()

	if e.life.NeedsReconcile() {
		if err := e.life.Reconcile(ev.Orders, nowM); err != nil {
			slog.Warn("reconcile error", slog.String("err", err.Error()))
		}
		slog.Info("reconciled against exchange",
			slog.Int("open_orders", len(ev.Orders)),
			slog.String("state", e.life.State().String()))
		return
	}

	ord, ok := e.life.Order()
	if !ok || ord.ID == "" {
		return
	}
	for _, o := range ev.Orders {
		if o.ID == ord.ID {
			return // still resting
		}
	}

	// Acknowledged and gone from the book: filled at the limit price.
	pos, hadPos := e.life.Position()
	if err := e.life.OnFill(ord.ID, nowM); err != nil {
		slog.Warn("fill bookkeeping failed", slog.String("err", err.Error()))
		return
	}
	slog.Info("order filled",
		slog.String("id", ord.ID),
		slog.String("side", string(ord.Side)),
		slog.String("price", ord.Price.String()))
	e.journalFill(ord, nowM)
	if ord.Side == domain.Sell && hadPos {
		e.journalTrade(pos, ord, nowM)
	}
}

func (e *Engine) handleBalance(ev event.BalanceEvent) {
	e.balancePending = false
	if ev.Err != "" {
		slog.Warn("balance query failed", slog.String("err", ev.Err))
		return
	}
	free, err := decimal.NewFromString(ev.Free)
	if err != nil {
		slog.Warn("bad balance payload", slog.String("free", ev.Free))
		return
	}
	e.freeBalance = free
	e.balanceFresh = true
}

func (e *Engine) handleSnapshot(ev event.SnapshotEvent) {
	e.rebuilding = false
	if ev.Err != "" {
		slog.Warn("snapshot fetch failed", slog.String("err", ev.Err))
		e.needRebuild = true
		return
	}
	if err := e.book.LoadSnapshot(ev.Snapshot); err != nil {
		slog.Warn("snapshot rejected", slog.String("err", err.Error()))
		e.needRebuild = true
		return
	}
	e.needRebuild = false
	slog.Info("book rebuilt", slog.Int64("last_update_id", ev.Snapshot.LastUpdateID))
}

// tickStrategy is the single synchronous decision per event. It emits at
// most one intent.
func (e *Engine) tickStrategy() {
	if e.halted || e.inflight || e.rebuilding {
		return
	}
	if e.life.NeedsReconcile() {
		if !e.pollPending {
			e.dispatchOpenOrdersPoll()
		}
		return
	}
	if !e.book.Ready() {
		return
	}

	switch e.life.State() {
	case lifecycle.PositionOpen:
		e.evaluateExit()
	case lifecycle.Idle:
		e.evaluateEntry()
	}
	// BuyPlaced / SellPlaced wait on polls and the stale-order timer.
}

// evaluateExit places the closing sell. The safety exit takes priority over
// the profit target when both conditions hold in the same tick.
func (e *Engine) evaluateExit() {
	pos, ok := e.life.Position()
	if !ok {
		return
	}
	bid, ok := e.book.BestBid()
	if !ok {
		return
	}

	entry := pos.EntryPrice.Decimal()
	bidDec := bid.Price.Decimal()

	if bidDec.LessThanOrEqual(e.calc.SafetyExitPrice(entry)) {
		// Sell at the bid to get out now; losses grow while we wait.
		price := calc.QuantizeToTick(bidDec, e.tick)
		e.placeSell(pos, price, "safety")
		return
	}

	minSell := e.calc.MinSellPrice(entry)
	if bidDec.GreaterThanOrEqual(minSell) {
		// Never price below the margin floor, even after tick rounding.
		price := calc.CeilToTick(minSell, e.tick)
		e.placeSell(pos, price, "target")
	}
}

func (e *Engine) evaluateEntry() {
	nowM := e.now().UnixMicro()
	if !e.life.CooldownElapsed(nowM) || !e.entrySignal {
		return
	}

	ask, okA := e.book.BestAsk()
	bid, okB := e.book.BestBid()
	if !okA || !okB {
		return
	}

	askDec := ask.Price.Decimal()
	spread := askDec.Sub(bid.Price.Decimal())
	if spread.GreaterThan(askDec.Mul(e.cfg.SpreadTolerance())) {
		return // too wide to scalp
	}

	if !e.balanceFresh {
		if !e.balancePending {
			e.dispatchBalanceQuery()
		}
		return
	}
	amount := e.cfg.OrderAmount()
	if e.freeBalance.LessThan(amount) {
		slog.Warn("insufficient balance for entry",
			slog.String("free", e.freeBalance.String()),
			slog.String("needed", amount.String()))
		return
	}

	qty := calc.FloorToStep(amount.Div(askDec), e.step)
	if !qty.IsPositive() {
		return // order size rounds to nothing at this price
	}
	price := calc.QuantizeToTick(askDec, e.tick)

	o := domain.Order{
		ClientID:     uuid.NewString(),
		Symbol:       e.cfg.Trading.Symbol,
		Side:         domain.Buy,
		Price:        quant.PriceFromDecimal(price),
		Qty:          quant.QtyFromDecimal(qty),
		Status:       domain.StatusPending,
		CreatedUnixM: nowM,
	}
	if err := e.life.TrackBuy(o, nowM); err != nil {
		slog.Warn("buy intent refused", slog.String("err", err.Error()))
		return
	}

	e.entrySignal = false
	e.balanceFresh = false
	slog.Info("placing buy",
		slog.String("client_id", o.ClientID),
		slog.String("price", o.Price.String()),
		slog.String("qty", o.Qty.String()))
	e.dispatchPlace(o)
}

func (e *Engine) placeSell(pos domain.Position, price decimal.Decimal, reason string) {
	o := domain.Order{
		ClientID:     uuid.NewString(),
		Symbol:       e.cfg.Trading.Symbol,
		Side:         domain.Sell,
		Price:        quant.PriceFromDecimal(price),
		Qty:          pos.Qty, // a closing sell uses exactly the entry quantity
		Status:       domain.StatusPending,
		CreatedUnixM: e.now().UnixMicro(),
	}
	if err := e.life.TrackSell(o); err != nil {
		slog.Warn("sell intent refused", slog.String("err", err.Error()))
		return
	}

	slog.Info("placing sell",
		slog.String("reason", reason),
		slog.String("client_id", o.ClientID),
		slog.String("price", o.Price.String()),
		slog.String("qty", o.Qty.String()))
	e.dispatchPlace(o)
}

// dispatchPlace runs the gateway round-trip off the loop goroutine and
// injects the outcome back as an event correlated by client id.
func (e *Engine) dispatchPlace(o domain.Order) {
	e.inflight = true
	e.inflightCID = o.ClientID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
		defer cancel()

		res := event.OrderResultEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: quant.TimeStamp(e.now().UnixMicro())},
			ClientID:  o.ClientID,
			Op:        event.OpPlace,
		}

		id, err := e.gateway.PlaceOrder(ctx, o)
		switch {
		case err == nil:
			res.Outcome = event.OutcomeOK
			res.OrderID = id
		case errors.Is(err, context.DeadlineExceeded):
			res.Outcome = event.OutcomeUnknown
			res.Err = err.Error()
		default:
			res.Outcome = event.OutcomeFailed
			res.Err = err.Error()
		}
		e.inbox <- res
	}()
}

func (e *Engine) dispatchCancel(o domain.Order) {
	e.inflight = true
	e.inflightCID = o.ClientID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
		defer cancel()

		res := event.OrderResultEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: quant.TimeStamp(e.now().UnixMicro())},
			ClientID:  o.ClientID,
			Op:        event.OpCancel,
			OrderID:   o.ID,
		}

		cancelled, err := e.gateway.CancelOrder(ctx, o.Symbol, o.ID)
		switch {
		case err == nil:
			res.Outcome = event.OutcomeOK
			res.Cancelled = cancelled
		case errors.Is(err, context.DeadlineExceeded):
			res.Outcome = event.OutcomeUnknown
			res.Err = err.Error()
		default:
			res.Outcome = event.OutcomeFailed
			res.Err = err.Error()
		}
		e.inbox <- res
	}()
}

func (e *Engine) dispatchOpenOrdersPoll() {
	e.pollPending = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
		defer cancel()

		res := event.OpenOrdersEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: quant.TimeStamp(e.now().UnixMicro())},
		}
		orders, err := e.gateway.OpenOrders(ctx, e.cfg.Trading.Symbol)
		if err != nil {
			res.Err = err.Error()
		} else {
			res.Orders = orders
		}
		e.inbox <- res
	}()
}

func (e *Engine) dispatchBalanceQuery() {
	e.balancePending = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
		defer cancel()

		res := event.BalanceEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: quant.TimeStamp(e.now().UnixMicro())},
			Asset:     e.cfg.Trading.QuoteAsset,
		}
		free, err := e.gateway.Balance(ctx, e.cfg.Trading.QuoteAsset)
		if err != nil {
			res.Err = err.Error()
		} else {
			res.Free = free.String()
		}
		e.inbox <- res
	}()
}

func (e *Engine) rebuildBook() {
	e.rebuilding = true
	e.life.RequireReconcile()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
		defer cancel()

		res := event.SnapshotEvent{
			BaseEvent: event.BaseEvent{Seq: quant.NextSeq(&e.seq), Ts: quant.TimeStamp(e.now().UnixMicro())},
		}
		snap, err := e.gateway.DepthSnapshot(ctx, e.cfg.Trading.Symbol, e.cfg.Trading.OrderBookDepth)
		if err != nil {
			res.Err = err.Error()
		} else {
			res.Snapshot = snap
		}
		e.inbox <- res
	}()
}

// errIs matches an event's stringified error against a gateway sentinel.
// Round-trips cross a goroutine boundary as events, so the wrapped error
// chain is flattened to text by then.
func errIs(errStr string, sentinel error) bool {
	return errStr != "" && strings.Contains(errStr, sentinel.Error())
}

func (e *Engine) halt(reason string) {
	e.halted = true
	e.haltReason = reason
	slog.Error("engine halted", slog.String("reason", reason))
}

func (e *Engine) journalFill(o domain.Order, nowM int64) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordFill(context.Background(), o, nowM); err != nil {
		slog.Warn("journal fill failed", slog.String("err", err.Error()))
	}
}

func (e *Engine) journalTrade(pos domain.Position, sell domain.Order, nowM int64) {
	if e.journal == nil {
		return
	}

	// Realized quote profit: (sell - buy) notional minus both fees.
	gross := safe.Sub(
		safe.MulDiv(int64(sell.Price), int64(sell.Qty), quant.QtyScale),
		safe.MulDiv(int64(pos.EntryPrice), int64(pos.Qty), quant.QtyScale),
	)
	fees := e.calc.Fee(sell.Qty.Decimal(), sell.Price.Decimal()).
		Add(e.calc.Fee(pos.Qty.Decimal(), pos.EntryPrice.Decimal()))
	pnl := gross - int64(quant.PriceFromDecimal(fees))

	trade := storage.ClosedTrade{
		Symbol:      sell.Symbol,
		BuyPrice:    pos.EntryPrice,
		SellPrice:   sell.Price,
		Qty:         sell.Qty,
		PnLMicros:   pnl,
		OpenedUnixM: pos.OpenedUnixM,
		ClosedUnixM: nowM,
	}
	if err := e.journal.RecordTrade(context.Background(), trade); err != nil {
		slog.Warn("journal trade failed", slog.String("err", err.Error()))
	}
}
