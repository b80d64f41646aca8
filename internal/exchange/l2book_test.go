package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func packBook(block int64, bids, asks [][2]int64) []byte {
	out := word(block)
	for _, lvl := range bids {
		out = append(out, word(lvl[0])...)
		out = append(out, word(lvl[1])...)
	}
	out = append(out, word(0)...)
	for _, lvl := range asks {
		out = append(out, word(lvl[0])...)
		out = append(out, word(lvl[1])...)
	}
	return out
}

func TestDecodeL2Book(t *testing.T) {
	// Bids highest first; asks arrive highest first on the wire and the
	// decoder reverses them to ascending.
	data := packBook(1234,
		[][2]int64{{10000, 5}, {9900, 10}},
		[][2]int64{{10300, 2}, {10200, 7}, {10100, 3}},
	)

	snap, err := decodeL2Book("mon-usdc", data)
	require.NoError(t, err)

	assert.Equal(t, "mon-usdc", snap.Market)
	assert.Equal(t, uint64(1234), snap.Block)

	require.Len(t, snap.Bids, 2)
	assert.Equal(t, domain.PriceLevel{Price: 10000, Size: 5}, snap.Bids[0])
	assert.Equal(t, domain.PriceLevel{Price: 9900, Size: 10}, snap.Bids[1])

	require.Len(t, snap.Asks, 3)
	assert.Equal(t, domain.PriceLevel{Price: 10100, Size: 3}, snap.Asks[0])
	assert.Equal(t, domain.PriceLevel{Price: 10300, Size: 2}, snap.Asks[2])
}

func TestDecodeL2BookEmptySides(t *testing.T) {
	data := packBook(50, nil, nil)
	snap, err := decodeL2Book("mon-usdc", data)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), snap.Block)
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestDecodeL2BookTooShort(t *testing.T) {
	_, err := decodeL2Book("mon-usdc", []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeL2BookTruncatedPair(t *testing.T) {
	data := append(word(1), word(10000)...) // price with no size word
	_, err := decodeL2Book("mon-usdc", data)
	assert.Error(t, err)
}
