package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/app"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/engine"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange/binance"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	pprofAddr := flag.String("pprof", "localhost:6060", "pprof listen address, empty to disable")
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			// Localhost only for security
			slog.Info("🕵️ Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, *configPath)
	if err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	eng, err := a.BuildEngine(ctx)
	if err != nil {
		slog.Error("❌ Engine warmup failed", slog.Any("error", err))
		os.Exit(1)
	}

	worker := binance.NewDepthWorker(
		a.Config.API.Binance.WSURL,
		a.Config.Trading.Symbol,
		eng.Inbox(),
		eng.Seq(),
	)
	worker.Start(ctx)
	defer worker.Stop()
	slog.InfoContext(ctx, "✅ Depth stream started", slog.String("symbol", a.Config.Trading.Symbol))

	slog.InfoContext(ctx, "✨ Scalper fully operational. Press Ctrl+C to exit.")

	err = eng.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		slog.InfoContext(ctx, "👋 Shutting down gracefully...")
	case errors.Is(err, engine.ErrHalted):
		slog.Error("🛑 Engine halted", slog.Any("error", err))
		os.Exit(1)
	default:
		slog.Error("Engine stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
