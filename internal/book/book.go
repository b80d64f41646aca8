// Package book maintains an in-memory two-sided price-level view of one
// market's order book.
package book

import (
	"sort"
	"sync"

	"github.com/curvelab/monbot/internal/domain"
)

// Book is the aggregated price-level view for a single market. Bids are
// kept descending by price, asks ascending. All quantities are integer
// units. Block is the block number of the last applied snapshot and
// never decreases.
//
// A Book is safe for concurrent use; in practice one reconciler
// goroutine writes and any number of readers take snapshots.
type Book struct {
	mu     sync.RWMutex
	market string
	block  uint64
	stale  bool
	bids   map[int64]int64
	asks   map[int64]int64
}

// New returns an empty, stale book for the market. The book stays stale
// until the first Replace.
func New(market string) *Book {
	return &Book{
		market: market,
		stale:  true,
		bids:   make(map[int64]int64),
		asks:   make(map[int64]int64),
	}
}

// Replace installs a wholesale snapshot, discarding all current levels.
// Snapshots older than the current block are ignored so the freshness
// marker never moves backwards; Replace reports whether the snapshot
// was applied.
func (b *Book) Replace(snap domain.BookSnapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if snap.Block < b.block {
		return false
	}
	b.block = snap.Block
	b.stale = false
	b.bids = make(map[int64]int64, len(snap.Bids))
	for _, lvl := range snap.Bids {
		if lvl.Size > 0 {
			b.bids[lvl.Price] = lvl.Size
		}
	}
	b.asks = make(map[int64]int64, len(snap.Asks))
	for _, lvl := range snap.Asks {
		if lvl.Size > 0 {
			b.asks[lvl.Price] = lvl.Size
		}
	}
	return true
}

// MarkStale flags the book as out of date, e.g. when the push feed
// drops. Levels stay readable but Stale() reports true until the next
// successful Replace.
func (b *Book) MarkStale() {
	b.mu.Lock()
	b.stale = true
	b.mu.Unlock()
}

// Stale reports whether the book is known to be behind the exchange.
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Block returns the freshness marker.
func (b *Book) Block() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.block
}

// Add increases the aggregate size at a price level, creating the level
// if absent.
func (b *Book) Add(side domain.Side, price, size int64) {
	if size <= 0 {
		return
	}
	b.mu.Lock()
	b.levels(side)[price] += size
	b.mu.Unlock()
}

// Reduce decreases the aggregate size at a price level, removing the
// level when it reaches zero. Reductions clamp at zero; the book never
// holds a negative level.
func (b *Book) Reduce(side domain.Side, price, size int64) {
	if size <= 0 {
		return
	}
	b.mu.Lock()
	lv := b.levels(side)
	rest := lv[price] - size
	if rest <= 0 {
		delete(lv, price)
	} else {
		lv[price] = rest
	}
	b.mu.Unlock()
}

// Snapshot returns a read-only copy of the book, bids descending and
// asks ascending.
func (b *Book) Snapshot() domain.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := domain.BookSnapshot{
		Market: b.market,
		Block:  b.block,
		Bids:   sortedLevels(b.bids, true),
		Asks:   sortedLevels(b.asks, false),
	}
	return snap
}

// SizeAt returns the aggregate size resting at a price, zero if the
// level is absent.
func (b *Book) SizeAt(side domain.Side, price int64) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.levels(side)[price]
}

func (b *Book) levels(side domain.Side) map[int64]int64 {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

func sortedLevels(m map[int64]int64, desc bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(m))
	for price, size := range m {
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
