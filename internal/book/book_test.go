package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func TestReplaceOrdering(t *testing.T) {
	b := New("mon-usdc")
	assert.True(t, b.Stale())

	applied := b.Replace(domain.BookSnapshot{
		Market: "mon-usdc",
		Block:  100,
		Bids: []domain.PriceLevel{
			{Price: 9900, Size: 10},
			{Price: 10000, Size: 5},
		},
		Asks: []domain.PriceLevel{
			{Price: 10200, Size: 7},
			{Price: 10100, Size: 3},
		},
	})
	require.True(t, applied)
	assert.False(t, b.Stale())

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, int64(10000), snap.Bids[0].Price, "bids descending")
	assert.Equal(t, int64(10100), snap.Asks[0].Price, "asks ascending")

	best, ok := snap.BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10000), best.Price)
}

func TestReplaceNeverMovesBackwards(t *testing.T) {
	b := New("mon-usdc")
	require.True(t, b.Replace(domain.BookSnapshot{Block: 200, Bids: []domain.PriceLevel{{Price: 100, Size: 1}}}))

	applied := b.Replace(domain.BookSnapshot{Block: 150, Bids: []domain.PriceLevel{{Price: 999, Size: 9}}})
	assert.False(t, applied)
	assert.Equal(t, uint64(200), b.Block())
	assert.Equal(t, int64(1), b.SizeAt(domain.SideBuy, 100))
}

func TestReplaceIsWholesale(t *testing.T) {
	b := New("mon-usdc")
	b.Replace(domain.BookSnapshot{Block: 1, Bids: []domain.PriceLevel{{Price: 100, Size: 1}}})
	b.Replace(domain.BookSnapshot{Block: 2, Asks: []domain.PriceLevel{{Price: 200, Size: 2}}})

	assert.Zero(t, b.SizeAt(domain.SideBuy, 100), "old levels discarded, not merged")
	assert.Equal(t, int64(2), b.SizeAt(domain.SideSell, 200))
}

func TestAddReduce(t *testing.T) {
	b := New("mon-usdc")
	b.Replace(domain.BookSnapshot{Block: 1})

	b.Add(domain.SideBuy, 10000, 5)
	b.Add(domain.SideBuy, 10000, 3)
	assert.Equal(t, int64(8), b.SizeAt(domain.SideBuy, 10000))

	b.Reduce(domain.SideBuy, 10000, 6)
	assert.Equal(t, int64(2), b.SizeAt(domain.SideBuy, 10000))

	b.Reduce(domain.SideBuy, 10000, 2)
	assert.Zero(t, b.SizeAt(domain.SideBuy, 10000))
	assert.Empty(t, b.Snapshot().Bids, "level removed at zero")

	// Over-reduction clamps instead of going negative.
	b.Add(domain.SideSell, 10100, 4)
	b.Reduce(domain.SideSell, 10100, 10)
	assert.Zero(t, b.SizeAt(domain.SideSell, 10100))
}

func TestMarkStale(t *testing.T) {
	b := New("mon-usdc")
	b.Replace(domain.BookSnapshot{Block: 5, Bids: []domain.PriceLevel{{Price: 100, Size: 1}}})

	b.MarkStale()
	assert.True(t, b.Stale())
	assert.Equal(t, int64(1), b.SizeAt(domain.SideBuy, 100), "levels readable while stale")

	b.Replace(domain.BookSnapshot{Block: 6})
	assert.False(t, b.Stale())
}
