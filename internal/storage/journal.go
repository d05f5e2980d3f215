package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

// ClosedTrade is one completed buy/sell round trip.
type ClosedTrade struct {
	ID          int64
	Symbol      string
	BuyPrice    quant.PriceMicros
	SellPrice   quant.PriceMicros
	Qty         quant.QtySats
	PnLMicros   int64 // realized quote-asset profit, fees included
	OpenedUnixM int64
	ClosedUnixM int64
}

// Journal handles persistent storage of fills and closed trades in SQLite.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a new SQLite trade journal with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price_micros INTEGER NOT NULL,
			qty_sats INTEGER NOT NULL,
			filled_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fills table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			buy_price_micros INTEGER NOT NULL,
			sell_price_micros INTEGER NOT NULL,
			qty_sats INTEGER NOT NULL,
			pnl_micros INTEGER NOT NULL,
			opened_at INTEGER NOT NULL,
			closed_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create trades table: %w", err)
	}

	return &Journal{db: db}, nil
}

// RecordFill stores one confirmed order fill.
func (j *Journal) RecordFill(ctx context.Context, o domain.Order, filledUnixM int64) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO fills (order_id, client_id, symbol, side, price_micros, qty_sats, filled_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.ClientID, o.Symbol, string(o.Side), int64(o.Price), int64(o.Qty), filledUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// RecordTrade stores one completed round trip.
func (j *Journal) RecordTrade(ctx context.Context, t ClosedTrade) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO trades (symbol, buy_price_micros, sell_price_micros, qty_sats, pnl_micros, opened_at, closed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.Symbol, int64(t.BuyPrice), int64(t.SellPrice), int64(t.Qty), t.PnLMicros, t.OpenedUnixM, t.ClosedUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent closed trades, newest first.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]ClosedTrade, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, symbol, buy_price_micros, sell_price_micros, qty_sats, pnl_micros, opened_at, closed_at FROM trades ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []ClosedTrade
	for rows.Next() {
		var t ClosedTrade
		var buy, sell, qty int64
		if err := rows.Scan(&t.ID, &t.Symbol, &buy, &sell, &qty, &t.PnLMicros, &t.OpenedUnixM, &t.ClosedUnixM); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.BuyPrice = quant.PriceMicros(buy)
		t.SellPrice = quant.PriceMicros(sell)
		t.Qty = quant.QtySats(qty)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TotalPnL returns the sum of realized profit across all closed trades.
func (j *Journal) TotalPnL(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := j.db.QueryRowContext(ctx, "SELECT SUM(pnl_micros) FROM trades").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pnl: %w", err)
	}
	if !total.Valid {
		return 0, nil // no trades yet
	}
	return total.Int64, nil
}

// TradeCount returns the number of closed trades.
func (j *Journal) TradeCount(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trades").Scan(&n)
	return n, err
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (j *Journal) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
func (j *Journal) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
