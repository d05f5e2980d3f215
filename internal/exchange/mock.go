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

// Mock is a Gateway that keeps orders in memory and logs every call. It
// backs MOCK trading mode and the engine tests; tests override individual
// hooks to script error paths and races.
type Mock struct {
	mu     sync.Mutex
	nextID int
	orders map[string]domain.Order

	FreeBalance decimal.Decimal
	Rules       domain.ExchangeRules

	// Optional hooks. When nil the in-memory default runs.
	PlaceHook    func(o domain.Order) (string, error)
	CancelHook   func(symbol, orderID string) (bool, error)
	OpenHook     func(symbol string) ([]domain.Order, error)
	SnapshotHook func(symbol string, limit int) (domain.BookSnapshot, error)
}

// NewMock returns a Mock with a comfortable balance and permissive rules.
func NewMock() *Mock {
	return &Mock{
		orders:      make(map[string]domain.Order),
		FreeBalance: decimal.RequireFromString("1000"),
		Rules:       domain.ExchangeRules{Symbol: "BONKUSDT", MinLotSize: 100_000_000, TickSize: 1},
	}
}

func (m *Mock) PlaceOrder(ctx context.Context, o domain.Order) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PlaceHook != nil {
		return m.PlaceHook(o)
	}

	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)
	o.ID = id
	o.Status = domain.StatusPending
	m.orders[id] = o

	slog.Info("MOCK place_order",
		slog.String("id", id),
		slog.String("side", string(o.Side)),
		slog.String("price", o.Price.String()),
		slog.String("qty", o.Qty.String()))
	return id, nil
}

func (m *Mock) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CancelHook != nil {
		return m.CancelHook(symbol, orderID)
	}

	if _, ok := m.orders[orderID]; !ok {
		return false, nil // lost the race
	}
	delete(m.orders, orderID)
	slog.Info("MOCK cancel_order", slog.String("id", orderID))
	return true, nil
}

func (m *Mock) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenHook != nil {
		return m.OpenHook(symbol)
	}

	var out []domain.Order
	for _, o := range m.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

// Fill marks an order filled by removing it from the open set, simulating
// the exchange matching it.
func (m *Mock) Fill(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
}

func (m *Mock) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FreeBalance, nil
}

func (m *Mock) ExchangeInfo(ctx context.Context, symbol string) (domain.ExchangeRules, error) {
	return m.Rules, nil
}

func (m *Mock) DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.BookSnapshot, error) {
	if m.SnapshotHook != nil {
		return m.SnapshotHook(symbol, limit)
	}
	return domain.BookSnapshot{Symbol: symbol}, nil
}

func (m *Mock) RecentCloses(ctx context.Context, symbol, interval string, limit int) ([]signal.PricePoint, error) {
	return nil, nil
}

func (m *Mock) TimeOffset(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

var _ Gateway = (*Mock)(nil)
