package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/event"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// DepthWorker consumes the <symbol>@depth diff stream and feeds
// DepthDiffEvents into the engine inbox. Binance answers protocol-level
// pings itself, so OnPing only refreshes the read deadline via a control
// ping frame.
type DepthWorker struct {
	base   *infra.WSWorker
	wsURL  string
	symbol string
	inbox  chan<- event.Event
	seq    *uint64
}

// NewDepthWorker builds a worker for one symbol's depth stream.
func NewDepthWorker(wsURL, symbol string, inbox chan<- event.Event, seq *uint64) *DepthWorker {
	w := &DepthWorker{
		wsURL:  strings.TrimRight(wsURL, "/"),
		symbol: symbol,
		inbox:  inbox,
		seq:    seq,
	}
	w.base = infra.NewWSWorker(w)
	w.base.ReadTimeout = readTimeout
	w.base.PingInterval = pingInterval
	return w
}

func (w *DepthWorker) ID() string { return "BINANCE_DEPTH" }

func (w *DepthWorker) GetURL() string {
	return fmt.Sprintf("%s/ws/%s@depth@100ms", w.wsURL, strings.ToLower(w.symbol))
}

// Start launches the connection loop.
func (w *DepthWorker) Start(ctx context.Context) {
	w.base.Start(ctx)
}

// Stop terminates the worker.
func (w *DepthWorker) Stop() {
	w.base.Stop()
}

func (w *DepthWorker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	// The stream is selected by URL path; no subscribe message is needed.
	slog.Info("depth stream connected", slog.String("symbol", w.symbol))
	return nil
}

func (w *DepthWorker) OnMessage(ctx context.Context, msg []byte) {
	var upd depthUpdate
	if err := json.Unmarshal(msg, &upd); err != nil {
		slog.Warn("depth stream: bad message", slog.String("err", err.Error()))
		return
	}
	if upd.EventType != "depthUpdate" || upd.Symbol != w.symbol {
		return
	}

	ev := event.AcquireDepthDiffEvent()
	ev.Seq = quant.NextSeq(w.seq)
	ev.Ts = quant.TimeStamp(upd.EventTime * 1000)
	ev.Symbol = upd.Symbol
	ev.FirstUpdateID = upd.FirstUpdateID
	ev.FinalUpdateID = upd.FinalUpdateID

	var err error
	if ev.Bids, err = appendLevels(ev.Bids, upd.Bids); err != nil {
		slog.Warn("depth stream: bad bid level", slog.String("err", err.Error()))
		event.ReleaseDepthDiffEvent(ev)
		return
	}
	if ev.Asks, err = appendLevels(ev.Asks, upd.Asks); err != nil {
		slog.Warn("depth stream: bad ask level", slog.String("err", err.Error()))
		event.ReleaseDepthDiffEvent(ev)
		return
	}

	select {
	case w.inbox <- ev:
	default:
		// Inbox full: dropping a diff forces a snapshot rebuild later,
		// which is safer than blocking the read loop.
		slog.Warn("depth stream: inbox full, diff dropped",
			slog.Int64("final_update_id", ev.FinalUpdateID))
		event.ReleaseDepthDiffEvent(ev)
	}
}

func (w *DepthWorker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// appendLevels parses ["price","qty"] pairs into the (pooled) level slice.
func appendLevels(dst []domain.BookLevel, raw [][2]string) ([]domain.BookLevel, error) {
	for _, pair := range raw {
		price, err := quant.PriceFromString(pair[0])
		if err != nil {
			return dst, fmt.Errorf("price %q: %w", pair[0], err)
		}
		qty, err := quant.QtyFromString(pair[1])
		if err != nil {
			return dst, fmt.Errorf("qty %q: %w", pair[1], err)
		}
		dst = append(dst, domain.BookLevel{Price: price, Qty: qty})
	}
	return dst, nil
}
