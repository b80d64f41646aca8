package exchange

import (
	"fmt"
	"math/big"

	"github.com/curvelab/monbot/internal/domain"
)

const wordSize = 32

// decodeL2Book decodes the contract's packed book payload: a 32-byte
// block number followed by (price, size) 32-byte word pairs. Bids come
// first, highest price first; a zero price word separates bids from
// asks. Asks arrive lowest price last and are reversed here so the
// snapshot carries them ascending.
func decodeL2Book(market string, data []byte) (domain.BookSnapshot, error) {
	if len(data) < wordSize {
		return domain.BookSnapshot{}, fmt.Errorf("exchange: l2 book payload too short (%d bytes)", len(data))
	}

	block := new(big.Int).SetBytes(data[:wordSize])
	if !block.IsUint64() {
		return domain.BookSnapshot{}, fmt.Errorf("exchange: l2 book block number overflows uint64")
	}

	snap := domain.BookSnapshot{
		Market: market,
		Block:  block.Uint64(),
	}

	offset := wordSize
	onAsks := false
	for offset+wordSize <= len(data) {
		price := new(big.Int).SetBytes(data[offset : offset+wordSize])
		if price.Sign() == 0 {
			onAsks = true
			offset += wordSize
			continue
		}
		if offset+2*wordSize > len(data) {
			return domain.BookSnapshot{}, fmt.Errorf("exchange: l2 book truncated at offset %d", offset)
		}
		size := new(big.Int).SetBytes(data[offset+wordSize : offset+2*wordSize])
		if !price.IsInt64() || !size.IsInt64() {
			return domain.BookSnapshot{}, fmt.Errorf("exchange: l2 book level overflows int64")
		}
		level := domain.PriceLevel{Price: price.Int64(), Size: size.Int64()}
		if onAsks {
			snap.Asks = append(snap.Asks, level)
		} else {
			snap.Bids = append(snap.Bids, level)
		}
		offset += 2 * wordSize
	}

	reverse(snap.Asks)
	return snap, nil
}

func reverse(levels []domain.PriceLevel) {
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
}
