package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func limitOrder(cloid string, side domain.Side, price, size int64) domain.NormalizedOrder {
	return domain.NormalizedOrder{
		Intent: domain.OrderIntent{Cloid: cloid, Kind: domain.KindLimit, Side: side},
		Price:  price,
		Size:   size,
	}
}

func creation(id uint64, side domain.Side, price, size int64) domain.CreationRecord {
	return domain.CreationRecord{OrderID: id, Side: side, Price: price, Size: size}
}

func TestMatchDistinctBuckets(t *testing.T) {
	res := matchCreations(
		[]domain.NormalizedOrder{
			limitOrder("mm_1", domain.SideBuy, 20, 10000),
			limitOrder("mm_2", domain.SideBuy, 30, 10000),
		},
		[]domain.CreationRecord{
			creation(501, domain.SideBuy, 20, 10000),
			creation(502, domain.SideBuy, 30, 10000),
		},
	)

	require.Len(t, res.pairs, 2)
	assert.Empty(t, res.ambiguous)
	assert.Empty(t, res.leftover)
	assert.Equal(t, "mm_1", res.pairs[0].cloid)
	assert.Equal(t, uint64(501), res.pairs[0].record.OrderID)
	assert.Equal(t, "mm_2", res.pairs[1].cloid)
	assert.Equal(t, uint64(502), res.pairs[1].record.OrderID)
}

func TestMatchSameBucketZipsInOrder(t *testing.T) {
	res := matchCreations(
		[]domain.NormalizedOrder{
			limitOrder("a", domain.SideSell, 100, 1),
			limitOrder("b", domain.SideSell, 100, 2),
		},
		[]domain.CreationRecord{
			creation(7, domain.SideSell, 100, 1),
			creation(8, domain.SideSell, 100, 2),
		},
	)

	require.Len(t, res.pairs, 2)
	assert.Equal(t, uint64(7), res.pairs[0].record.OrderID)
	assert.Equal(t, uint64(8), res.pairs[1].record.OrderID)
}

func TestMatchUnequalBucketPairsNothing(t *testing.T) {
	res := matchCreations(
		[]domain.NormalizedOrder{
			limitOrder("a", domain.SideBuy, 100, 1),
			limitOrder("b", domain.SideBuy, 100, 2),
			limitOrder("c", domain.SideSell, 200, 3),
		},
		[]domain.CreationRecord{
			creation(7, domain.SideBuy, 100, 1),
			creation(9, domain.SideSell, 200, 3),
		},
	)

	// The collision is confined to its bucket: the sell still pairs.
	require.Len(t, res.pairs, 1)
	assert.Equal(t, "c", res.pairs[0].cloid)
	assert.ElementsMatch(t, []string{"a", "b"}, res.ambiguous)
	require.Len(t, res.leftover, 1)
	assert.Equal(t, uint64(7), res.leftover[0].OrderID)
}

func TestMatchSideSeparatesBuckets(t *testing.T) {
	// Same price, different sides: two distinct buckets.
	res := matchCreations(
		[]domain.NormalizedOrder{
			limitOrder("a", domain.SideBuy, 100, 1),
			limitOrder("b", domain.SideSell, 100, 1),
		},
		[]domain.CreationRecord{
			creation(1, domain.SideSell, 100, 1),
			creation(2, domain.SideBuy, 100, 1),
		},
	)
	require.Len(t, res.pairs, 2)
	for _, p := range res.pairs {
		if p.cloid == "a" {
			assert.Equal(t, uint64(2), p.record.OrderID)
		} else {
			assert.Equal(t, uint64(1), p.record.OrderID)
		}
	}
}

func TestMatchRecordsWithNoIntentsAreLeftover(t *testing.T) {
	res := matchCreations(nil, []domain.CreationRecord{creation(5, domain.SideBuy, 100, 1)})
	assert.Empty(t, res.pairs)
	assert.Empty(t, res.ambiguous)
	require.Len(t, res.leftover, 1)
}
