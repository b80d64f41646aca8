package exchange

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/curvelab/monbot/internal/domain"
)

// packBatchUpdate builds calldata for one batchUpdate transaction from
// flattened per-side arrays plus cancel ids. Slice order is submission
// order; the contract emits creation logs in the same order.
func packBatchUpdate(call domain.BatchCall) ([]byte, error) {
	data, err := orderbookABI.Pack("batchUpdate",
		toBigInts(call.BuyPrices),
		toBigInts(call.BuySizes),
		toBigInts(call.SellPrices),
		toBigInts(call.SellSizes),
		idsToBigInts(call.CancelIDs),
		call.PostOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("exchange: pack batchUpdate: %w", err)
	}
	return data, nil
}

func packBatchCancel(orderIDs []uint64) ([]byte, error) {
	data, err := orderbookABI.Pack("batchCancelOrders", idsToBigInts(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("exchange: pack batchCancelOrders: %w", err)
	}
	return data, nil
}

// packMarket builds calldata for a market execution. Buys spend quote
// asset, sells spend base; useMargin is always false here, funding
// comes from token approvals.
func packMarket(call domain.MarketCall) ([]byte, error) {
	method := "placeAndExecuteMarketSell"
	if call.Side == domain.SideBuy {
		method = "placeAndExecuteMarketBuy"
	}
	data, err := orderbookABI.Pack(method,
		big.NewInt(call.Size),
		big.NewInt(call.MinOut),
		false,
		call.FillOrKill,
	)
	if err != nil {
		return nil, fmt.Errorf("exchange: pack %s: %w", method, err)
	}
	return data, nil
}

func packCall(method string) ([]byte, error) {
	data, err := orderbookABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("exchange: pack %s: %w", method, err)
	}
	return data, nil
}

type orderCreatedLog struct {
	OrderId *big.Int
	Owner   common.Address
	Size    *big.Int
	Price   *big.Int
	IsBuy   bool
}

// decodeCreations extracts the ordered creation records from a mined
// receipt. Logs from other contracts or other event types are skipped;
// log order within the receipt is preserved.
func decodeCreations(contract common.Address, logs []*types.Log) ([]domain.CreationRecord, error) {
	eventID := orderbookABI.Events["OrderCreated"].ID

	var records []domain.CreationRecord
	for _, lg := range logs {
		if lg == nil || lg.Address != contract {
			continue
		}
		if len(lg.Topics) == 0 || lg.Topics[0] != eventID {
			continue
		}
		var ev orderCreatedLog
		if err := orderbookABI.UnpackIntoInterface(&ev, "OrderCreated", lg.Data); err != nil {
			return nil, fmt.Errorf("exchange: decode OrderCreated log: %w", err)
		}
		side := domain.SideSell
		if ev.IsBuy {
			side = domain.SideBuy
		}
		records = append(records, domain.CreationRecord{
			OrderID: ev.OrderId.Uint64(),
			Owner:   ev.Owner.Hex(),
			Side:    side,
			Price:   ev.Price.Int64(),
			Size:    ev.Size.Int64(),
		})
	}
	return records, nil
}

// unpackMarketParams decodes the getMarketParams return data.
func unpackMarketParams(data []byte) (domain.MarketParams, error) {
	vals, err := orderbookABI.Unpack("getMarketParams", data)
	if err != nil {
		return domain.MarketParams{}, fmt.Errorf("exchange: unpack getMarketParams: %w", err)
	}
	if len(vals) != 11 {
		return domain.MarketParams{}, fmt.Errorf("exchange: getMarketParams returned %d values, want 11", len(vals))
	}
	u := func(i int) uint64 { return vals[i].(*big.Int).Uint64() }
	return domain.MarketParams{
		PricePrecision: u(0),
		SizePrecision:  u(1),
		TickSize:       u(6),
		MinSize:        u(7),
		MaxSize:        u(8),
		TakerFeeBps:    u(9),
		MakerFeeBps:    u(10),
	}, nil
}

// unpackL2Bytes decodes the getL2Book return data down to the raw
// packed payload.
func unpackL2Bytes(data []byte) ([]byte, error) {
	vals, err := orderbookABI.Unpack("getL2Book", data)
	if err != nil {
		return nil, fmt.Errorf("exchange: unpack getL2Book: %w", err)
	}
	raw, ok := vals[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("exchange: getL2Book returned %T, want bytes", vals[0])
	}
	return raw, nil
}

func toBigInts(vs []int64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = big.NewInt(v)
	}
	return out
}

func idsToBigInts(ids []uint64) []*big.Int {
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = new(big.Int).SetUint64(id)
	}
	return out
}
