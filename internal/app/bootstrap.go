// Package app wires configuration, storage, the gateway and the engine
// together for the executable entrypoints.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/engine"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/event"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange/binance"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/storage"
)

// Paper trading starts with this much virtual quote balance.
var paperBalance = decimal.RequireFromString("1000")

// Clock drift bounds. Drift past the warn level degrades signed requests;
// past the fail level the recvWindow cannot save them.
const (
	warnClockDrift = 1 * time.Second
	failClockDrift = 30 * time.Second
)

// App holds everything a runnable process needs.
type App struct {
	Config  *infra.Config
	Journal *storage.Journal
	Gateway exchange.Gateway
	Client  *binance.Client // market-data client, also the REAL gateway
	Rules   domain.ExchangeRules

	unlock func()
}

// Bootstrap performs the startup sequence: env, config, logging, workspace,
// journal and gateway construction, then the startup checks against the
// exchange.
func Bootstrap(ctx context.Context, configPath string) (*App, error) {
	_ = godotenv.Load() // a missing .env file is fine

	event.Warmup()

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(infra.NewLogger(cfg))
	infra.PrintBanner(cfg)

	mode := strings.ToUpper(cfg.Trading.Mode)

	workDir := infra.WorkspaceDir()
	dataDir := filepath.Join(workDir, "data", strings.ToLower(mode))
	if err := infra.EnsureDir(dataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return nil, err
	}

	journal, err := storage.NewJournal(filepath.Join(dataDir, "journal.db"))
	if err != nil {
		unlock()
		return nil, err
	}
	slog.Info("journal ready", slog.String("dir", dataDir))

	a := &App{
		Config:  cfg,
		Journal: journal,
		Client:  binance.NewClient(cfg),
		unlock:  unlock,
	}

	if mode == "REAL" {
		// The same latch the exchange keys live orders behind: an explicit
		// operator acknowledgement, not just a config value.
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			a.Close()
			return nil, fmt.Errorf("real trading requires CONFIRM_REAL_MONEY=true in the environment")
		}
		a.Gateway = a.Client
	} else {
		a.Gateway = exchange.NewPaper(a.Client, paperBalance)
	}

	if err := a.startupChecks(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// startupChecks verifies the clock and fetches the symbol's trading rules.
func (a *App) startupChecks(ctx context.Context) error {
	offset, err := a.Gateway.TimeOffset(ctx)
	if err != nil {
		return fmt.Errorf("server time check: %w", err)
	}
	drift := offset
	if drift < 0 {
		drift = -drift
	}
	if drift > failClockDrift {
		return fmt.Errorf("clock drift %s exceeds %s, fix the system clock", offset, failClockDrift)
	}
	if drift > warnClockDrift {
		slog.Warn("large clock drift against exchange",
			slog.Duration("offset", offset))
	}

	rules, err := a.Gateway.ExchangeInfo(ctx, a.Config.Trading.Symbol)
	if err != nil {
		return fmt.Errorf("exchange info: %w", err)
	}
	a.Rules = rules
	slog.Info("exchange rules loaded",
		slog.String("symbol", rules.Symbol),
		slog.String("tick", rules.TickSize.String()),
		slog.String("lot_step", rules.MinLotSize.String()))
	return nil
}

// BuildEngine constructs the strategy engine, seeds the book from a REST
// snapshot and warms the signal window from historical klines.
func (a *App) BuildEngine(ctx context.Context) (*engine.Engine, error) {
	e := engine.New(a.Config, a.Gateway, a.Journal, a.Rules)

	snap, err := a.Gateway.DepthSnapshot(ctx, a.Config.Trading.Symbol, a.Config.Trading.OrderBookDepth)
	if err != nil {
		return nil, fmt.Errorf("depth snapshot: %w", err)
	}
	if err := e.SeedBook(snap); err != nil {
		return nil, fmt.Errorf("seed book: %w", err)
	}

	closes, err := a.Gateway.RecentCloses(ctx, a.Config.Trading.Symbol, "1m", a.Config.Trading.LongWindow)
	if err != nil {
		return nil, fmt.Errorf("kline warmup: %w", err)
	}
	e.WarmSignal(closes)

	return e, nil
}

// Close releases the instance lock, the journal and the API credentials.
func (a *App) Close() {
	if a.Journal != nil {
		a.Journal.Close()
	}
	if a.Client != nil {
		a.Client.Close()
	}
	if a.unlock != nil {
		a.unlock()
	}
}
