// Package exchange defines the gateway contract the engine drives. The wire
// implementation lives in the binance subpackage; tests and mock mode use
// the Mock gateway.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/signal"
)

// Gateway error categories. The engine's retry policy keys off these:
// transient errors retry with backoff, validation errors re-quantize once,
// fatal errors halt the engine.
var (
	ErrInsufficientBalance = errors.New("exchange: insufficient balance")
	ErrInvalidLotSize      = errors.New("exchange: lot or tick size rejected")
	ErrRateLimited         = errors.New("exchange: rate limited")
	ErrRejected            = errors.New("exchange: order rejected")
	ErrAuth                = errors.New("exchange: authentication failed")
	ErrUnknownSymbol       = errors.New("exchange: unknown symbol")
)

// Fatal reports whether the error category must halt the engine.
func Fatal(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrUnknownSymbol)
}

// Transient reports whether the same intent may be retried with backoff.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Gateway executes engine intents against the exchange. Every call is a
// bounded round-trip; the engine never blocks its event loop on one.
type Gateway interface {
	// PlaceOrder submits a limit order and returns the exchange order id.
	PlaceOrder(ctx context.Context, o domain.Order) (string, error)

	// CancelOrder cancels by exchange id. The returned bool is authoritative:
	// false means the cancel lost a race (e.g. to a fill) and the caller must
	// not assume the order is gone.
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)

	// OpenOrders returns all resting orders for the symbol.
	OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error)

	// Balance returns the free balance of an asset.
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)

	// ExchangeInfo returns the lot/tick constraints for the symbol.
	ExchangeInfo(ctx context.Context, symbol string) (domain.ExchangeRules, error)

	// DepthSnapshot fetches a full order-book snapshot for (re)building the
	// local book.
	DepthSnapshot(ctx context.Context, symbol string, limit int) (domain.BookSnapshot, error)

	// RecentCloses fetches historical close prices to warm the MA window.
	RecentCloses(ctx context.Context, symbol, interval string, limit int) ([]signal.PricePoint, error)

	// TimeOffset returns exchange server time minus local time.
	TimeOffset(ctx context.Context) (time.Duration, error)
}
