// Command booktool inspects the public Binance depth feed without trading.
// It prints a REST snapshot of the order book and can optionally tail the
// websocket diff stream for a while, which is handy for checking symbol
// names and stream health before pointing the trader at them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/event"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/exchange/binance"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/infra"
)

func main() {
	symbol := flag.String("symbol", "BONKUSDT", "trading pair to inspect")
	depth := flag.Int("depth", 10, "number of levels to print per side")
	restURL := flag.String("rest", "https://api.binance.com", "REST base URL")
	wsURL := flag.String("ws", "wss://stream.binance.com:9443", "websocket base URL")
	stream := flag.Duration("stream", 0, "tail the diff stream for this long (0 disables)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg := &infra.Config{}
	cfg.API.Binance.RestURL = *restURL
	cfg.API.Binance.WSURL = *wsURL

	client := binance.NewClient(cfg)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	snap, err := client.DepthSnapshot(ctx, *symbol, *depth)
	cancel()
	if err != nil {
		slog.Error("snapshot failed", slog.Any("error", err))
		os.Exit(1)
	}

	fmt.Printf("%s  lastUpdateId=%d\n", *symbol, snap.LastUpdateID)
	fmt.Printf("%-4s %14s %18s   %14s %18s\n", "", "BID", "QTY", "ASK", "QTY")
	n := len(snap.Bids)
	if len(snap.Asks) > n {
		n = len(snap.Asks)
	}
	for i := 0; i < n; i++ {
		bidPx, bidQty, askPx, askQty := "", "", "", ""
		if i < len(snap.Bids) {
			bidPx, bidQty = snap.Bids[i].Price.String(), snap.Bids[i].Qty.String()
		}
		if i < len(snap.Asks) {
			askPx, askQty = snap.Asks[i].Price.String(), snap.Asks[i].Qty.String()
		}
		fmt.Printf("%-4d %14s %18s   %14s %18s\n", i+1, bidPx, bidQty, askPx, askQty)
	}

	if *stream <= 0 {
		return
	}

	// Tail the diff stream and print one line per update.
	var seq uint64
	inbox := make(chan event.Event, 256)
	worker := binance.NewDepthWorker(*wsURL, *symbol, inbox, &seq)

	streamCtx, stop := context.WithTimeout(context.Background(), *stream)
	defer stop()
	worker.Start(streamCtx)
	defer worker.Stop()

	for {
		select {
		case <-streamCtx.Done():
			return
		case ev := <-inbox:
			diff, ok := ev.(*event.DepthDiffEvent)
			if !ok {
				continue
			}
			fmt.Printf("diff U=%d u=%d bids=%d asks=%d\n",
				diff.FirstUpdateID, diff.FinalUpdateID, len(diff.Bids), len(diff.Asks))
			event.ReleaseDepthDiffEvent(diff)
		}
	}
}
