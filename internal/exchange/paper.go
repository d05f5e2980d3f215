package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/signal"
)

// Paper simulates order execution against a virtual quote balance while
// delegating every market-data call to a real gateway. This backs MOCK mode:
// live prices, pretend money.
type Paper struct {
	market Gateway

	mu      sync.Mutex
	nextID  int
	orders  map[string]domain.Order
	balance decimal.Decimal
}

// NewPaper wraps a market-data gateway with simulated execution and the
// given starting quote balance.
func NewPaper(market Gateway, initialBalance decimal.Decimal) *Paper {
	return &Paper{
		market:  market,
		orders:  make(map[string]domain.Order),
		balance: initialBalance,
	}
}

func (p *Paper) PlaceOrder(ctx context.Context, o domain.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.Side == domain.Buy {
		notional := o.Price.Decimal().Mul(o.Qty.Decimal())
		if p.balance.LessThan(notional) {
			return "", fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, p.balance, notional)
		}
		p.balance = p.balance.Sub(notional)
	}

	p.nextID++
	id := fmt.Sprintf("paper-%d", p.nextID)
	o.ID = id
	o.Status = domain.StatusPending
	p.orders[id] = o

	slog.Info("PAPER place_order",
		slog.String("id", id),
		slog.String("side", string(o.Side)),
		slog.String("price", o.Price.String()),
		slog.String("qty", o.Qty.String()))
	return id, nil
}

func (p *Paper) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return false, nil // already filled or never existed
	}
	if o.Side == domain.Buy {
		p.balance = p.balance.Add(o.Price.Decimal().Mul(o.Qty.Decimal()))
	}
	delete(p.orders, orderID)
	slog.Info("PAPER cancel_order", slog.String("id", orderID))
	return true, nil
}

// OpenOrders settles resting orders against the live book before answering:
// a buy fills once the best ask trades at or below its price, a sell once
// the best bid reaches it. Settlement happens here because polls are the
// engine's only fill-detection channel.
func (p *Paper) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.orders) > 0 {
		snap, err := p.market.DepthSnapshot(ctx, symbol, 5)
		if err != nil {
			return nil, err
		}
		p.settle(snap)
	}

	out := make([]domain.Order, 0, len(p.orders))
	for _, o := range p.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Paper) settle(snap domain.BookSnapshot) {
	for id, o := range p.orders {
		filled := false
		switch o.Side {
		case domain.Buy:
			filled = len(snap.Asks) > 0 && snap.Asks[0].Price <= o.Price
		case domain.Sell:
			filled = len(snap.Bids) > 0 && snap.Bids[0].Price >= o.Price
		}
		if !filled {
			continue
		}
		if o.Side == domain.Sell {
			p.balance = p.balance.Add(o.Price.Decimal().Mul(o.Qty.Decimal()))
		}
		delete(p.orders, id)
		slog.Info("PAPER fill",
			slog.String("id", id),
			slog.String("side", string(o.Side)),
			slog.String("price", o.Price.String()))
	}
}

func (p *Paper) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) ExchangeInfo(ctx context.Context, symbol string) (domain.ExchangeRules, error) {
	return p.market.ExchangeInfo(ctx, symbol)
}

func (p *Paper) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.BookSnapshot, error) {
	return p.market.DepthSnapshot(ctx, symbol, limit)
}

func (p *Paper) RecentCloses(ctx context.Context, symbol, interval string, limit int) ([]signal.PricePoint, error) {
	return p.market.RecentCloses(ctx, symbol, interval, limit)
}

func (p *Paper) TimeOffset(ctx context.Context) (time.Duration, error) {
	return p.market.TimeOffset(ctx)
}

var _ Gateway = (*Paper)(nil)
