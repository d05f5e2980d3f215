package exchange

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

func paperOrder(side domain.Side, price quant.PriceMicros, qty quant.QtySats) domain.Order {
	return domain.Order{
		ClientID: "c-1",
		Symbol:   "BONKUSDT",
		Side:     side,
		Price:    price,
		Qty:      qty,
		Status:   domain.StatusPending,
	}
}

func TestPaper_BuyDebitsBalance(t *testing.T) {
	market := NewMock()
	p := NewPaper(market, decimal.RequireFromString("100"))
	ctx := context.Background()

	// 2 units at 0.50 each: notional 1.00
	id, err := p.PlaceOrder(ctx, paperOrder(domain.Buy, 500_000, 200_000_000))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	free, err := p.Balance(ctx, "USDT")
	require.NoError(t, err)
	assert.True(t, free.Equal(decimal.RequireFromString("99")), "balance = %s", free)
}

func TestPaper_InsufficientBalance(t *testing.T) {
	p := NewPaper(NewMock(), decimal.RequireFromString("0.5"))

	_, err := p.PlaceOrder(context.Background(), paperOrder(domain.Buy, 500_000, 200_000_000))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestPaper_CancelRefunds(t *testing.T) {
	p := NewPaper(NewMock(), decimal.RequireFromString("100"))
	ctx := context.Background()

	id, err := p.PlaceOrder(ctx, paperOrder(domain.Buy, 500_000, 200_000_000))
	require.NoError(t, err)

	cancelled, err := p.CancelOrder(ctx, "BONKUSDT", id)
	require.NoError(t, err)
	require.True(t, cancelled)

	free, _ := p.Balance(ctx, "USDT")
	assert.True(t, free.Equal(decimal.RequireFromString("100")), "balance = %s", free)

	// Cancelling again reports the lost race.
	cancelled, err = p.CancelOrder(ctx, "BONKUSDT", id)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestPaper_SettlesAgainstBook(t *testing.T) {
	market := NewMock()
	p := NewPaper(market, decimal.RequireFromString("100"))
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, paperOrder(domain.Buy, 500_000, 200_000_000))
	require.NoError(t, err)

	// Ask above the buy price: still resting.
	market.SnapshotHook = func(symbol string, limit int) (domain.BookSnapshot, error) {
		return domain.BookSnapshot{
			Symbol: symbol,
			Asks:   []domain.BookLevel{{Price: 510_000, Qty: 1_000_000_000}},
			Bids:   []domain.BookLevel{{Price: 490_000, Qty: 1_000_000_000}},
		}, nil
	}
	open, err := p.OpenOrders(ctx, "BONKUSDT")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// Ask trades through the buy price: filled.
	market.SnapshotHook = func(symbol string, limit int) (domain.BookSnapshot, error) {
		return domain.BookSnapshot{
			Symbol: symbol,
			Asks:   []domain.BookLevel{{Price: 500_000, Qty: 1_000_000_000}},
			Bids:   []domain.BookLevel{{Price: 490_000, Qty: 1_000_000_000}},
		}, nil
	}
	open, err = p.OpenOrders(ctx, "BONKUSDT")
	require.NoError(t, err)
	assert.Empty(t, open)
}
