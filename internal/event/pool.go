package event

import (
	"sync"

	"github.com/PahtrikProper/BONK-USDT-ORDER-BOOK-TRADER/internal/domain"
)

// depthPool recycles DepthDiffEvent allocations. Depth diffs are the highest
// rate event in the system, so keeping them off the heap keeps GC pauses out
// of the hotpath.
var depthPool = sync.Pool{
	New: func() any {
		return &DepthDiffEvent{
			Bids: make([]domain.BookLevel, 0, 32),
			Asks: make([]domain.BookLevel, 0, 32),
		}
	},
}

// AcquireDepthDiffEvent returns a reset DepthDiffEvent from the pool.
func AcquireDepthDiffEvent() *DepthDiffEvent {
	return depthPool.Get().(*DepthDiffEvent)
}

// ReleaseDepthDiffEvent resets and returns the event to the pool. The caller
// must not touch the event afterwards.
func ReleaseDepthDiffEvent(e *DepthDiffEvent) {
	e.Seq = 0
	e.Ts = 0
	e.Symbol = ""
	e.FirstUpdateID = 0
	e.FinalUpdateID = 0
	e.Bids = e.Bids[:0]
	e.Asks = e.Asks[:0]
	depthPool.Put(e)
}

// Warmup pre-populates the pool so the first burst of diffs allocates nothing.
func Warmup() {
	evs := make([]*DepthDiffEvent, 64)
	for i := range evs {
		evs[i] = AcquireDepthDiffEvent()
	}
	for _, e := range evs {
		ReleaseDepthDiffEvent(e)
	}
}
