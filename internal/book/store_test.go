package book

import (
	"testing"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/pkg/quant"
)

func lvl(price quant.PriceMicros, qty quant.QtySats) domain.BookLevel {
	return domain.BookLevel{Price: price, Qty: qty}
}

func seedBook(t *testing.T) *Store {
	t.Helper()
	s := NewStore("BONKUSDT")
	err := s.LoadSnapshot(domain.BookSnapshot{
		Symbol:       "BONKUSDT",
		LastUpdateID: 100,
		Bids:         []domain.BookLevel{lvl(18, 500), lvl(17, 900)},
		Asks:         []domain.BookLevel{lvl(19, 300), lvl(20, 700)},
	})
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	return s
}

func TestApplyDiff_MergeRemoveInsert(t *testing.T) {
	s := seedBook(t)

	// Replace 18, remove 19, insert new best ask 21... (21 > 20 so appended)
	err := s.ApplyDiff(101,
		[]domain.BookLevel{lvl(18, 800)},
		[]domain.BookLevel{lvl(19, 0), lvl(21, 400)},
	)
	if err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}

	bb, _ := s.BestBid()
	if bb.Price != 18 || bb.Qty != 800 {
		t.Errorf("BestBid = %+v; want price 18 qty 800", bb)
	}
	ba, _ := s.BestAsk()
	if ba.Price != 20 {
		t.Errorf("BestAsk = %+v; want price 20 after removing 19", ba)
	}

	bids, asks := s.Depth(10)
	if len(bids) != 2 || len(asks) != 2 {
		t.Errorf("Depth = %d bids / %d asks; want 2/2", len(bids), len(asks))
	}
}

func TestApplyDiff_StaleDropped(t *testing.T) {
	s := seedBook(t)

	// Same id and lower id must both be no-ops.
	for _, id := range []int64{100, 99} {
		if err := s.ApplyDiff(id, []domain.BookLevel{lvl(18, 1)}, nil); err != nil {
			t.Fatalf("ApplyDiff(%d): %v", id, err)
		}
	}

	bb, _ := s.BestBid()
	if bb.Qty != 500 {
		t.Errorf("stale diff mutated the book: best bid qty = %d; want 500", bb.Qty)
	}
	if s.StaleDrops() != 2 {
		t.Errorf("StaleDrops = %d; want 2", s.StaleDrops())
	}
	if s.LastUpdateID() != 100 {
		t.Errorf("LastUpdateID = %d; want 100", s.LastUpdateID())
	}
}

// Property from the design: for any sequence of diffs applied in increasing
// id order, best bid stays below best ask after every application.
func TestApplyDiff_NonCrossedInvariant(t *testing.T) {
	s := seedBook(t)

	diffs := []struct {
		id   int64
		bids []domain.BookLevel
		asks []domain.BookLevel
	}{
		{101, []domain.BookLevel{lvl(18, 100)}, nil},
		{102, nil, []domain.BookLevel{lvl(19, 50)}},
		{103, []domain.BookLevel{lvl(17, 0)}, []domain.BookLevel{lvl(20, 0), lvl(22, 10)}},
		{104, []domain.BookLevel{lvl(16, 300)}, []domain.BookLevel{lvl(19, 0)}},
	}

	for _, d := range diffs {
		if err := s.ApplyDiff(d.id, d.bids, d.asks); err != nil {
			t.Fatalf("ApplyDiff(%d): %v", d.id, err)
		}
		bb, okB := s.BestBid()
		ba, okA := s.BestAsk()
		if okB && okA && bb.Price >= ba.Price {
			t.Fatalf("after diff %d: crossed book bid %d >= ask %d", d.id, bb.Price, ba.Price)
		}
	}
}

func TestApplyDiff_CrossedBookIsFatal(t *testing.T) {
	s := seedBook(t)

	// A bid at 19 crosses the resting ask at 19.
	err := s.ApplyDiff(101, []domain.BookLevel{lvl(19, 100)}, nil)
	if err != ErrCrossedBook {
		t.Fatalf("ApplyDiff crossing = %v; want ErrCrossedBook", err)
	}

	// Rebuild from snapshot recovers.
	if err := s.LoadSnapshot(domain.BookSnapshot{
		LastUpdateID: 200,
		Bids:         []domain.BookLevel{lvl(18, 500)},
		Asks:         []domain.BookLevel{lvl(19, 300)},
	}); err != nil {
		t.Fatalf("LoadSnapshot after cross: %v", err)
	}
	if s.LastUpdateID() != 200 {
		t.Errorf("LastUpdateID after rebuild = %d; want 200", s.LastUpdateID())
	}
}

func TestDepth_TruncatesToConfiguredLevels(t *testing.T) {
	s := seedBook(t)
	bids, asks := s.Depth(1)
	if len(bids) != 1 || len(asks) != 1 {
		t.Errorf("Depth(1) = %d/%d levels; want 1/1", len(bids), len(asks))
	}
	if bids[0].Price != 18 || asks[0].Price != 19 {
		t.Errorf("Depth(1) top of book = %d/%d; want 18/19", bids[0].Price, asks[0].Price)
	}
}
