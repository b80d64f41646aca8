package exchange

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOwner    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func creationLog(t *testing.T, addr common.Address, orderID, size, price int64, isBuy bool) *types.Log {
	t.Helper()
	event := orderbookABI.Events["OrderCreated"]
	data, err := event.Inputs.Pack(big.NewInt(orderID), testOwner, big.NewInt(size), big.NewInt(price), isBuy)
	require.NoError(t, err)
	return &types.Log{
		Address: addr,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}
}

func TestPackBatchUpdate(t *testing.T) {
	data, err := packBatchUpdate(domain.BatchCall{
		BuyPrices:  []int64{10000, 9900},
		BuySizes:   []int64{5, 10},
		SellPrices: []int64{10100},
		SellSizes:  []int64{7},
		CancelIDs:  []uint64{3, 4},
		PostOnly:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, orderbookABI.Methods["batchUpdate"].ID, data[:4])

	args, err := orderbookABI.Methods["batchUpdate"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	buyPrices := args[0].([]*big.Int)
	require.Len(t, buyPrices, 2)
	assert.Equal(t, int64(10000), buyPrices[0].Int64())
	cancels := args[4].([]*big.Int)
	require.Len(t, cancels, 2)
	assert.Equal(t, uint64(4), cancels[1].Uint64())
	assert.Equal(t, true, args[5].(bool))
}

func TestPackMarketSelectsMethod(t *testing.T) {
	buy, err := packMarket(domain.MarketCall{Side: domain.SideBuy, Size: 100, MinOut: 90})
	require.NoError(t, err)
	assert.Equal(t, orderbookABI.Methods["placeAndExecuteMarketBuy"].ID, buy[:4])

	sell, err := packMarket(domain.MarketCall{Side: domain.SideSell, Size: 100, MinOut: 90, FillOrKill: true})
	require.NoError(t, err)
	assert.Equal(t, orderbookABI.Methods["placeAndExecuteMarketSell"].ID, sell[:4])
}

func TestDecodeCreations(t *testing.T) {
	logs := []*types.Log{
		creationLog(t, testContract, 7, 100, 10000, true),
		// A log from some other contract is skipped.
		creationLog(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), 8, 1, 1, false),
		creationLog(t, testContract, 9, 50, 10100, false),
	}

	records, err := decodeCreations(testContract, logs)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint64(7), records[0].OrderID)
	assert.Equal(t, domain.SideBuy, records[0].Side)
	assert.Equal(t, int64(10000), records[0].Price)
	assert.Equal(t, int64(100), records[0].Size)
	assert.Equal(t, testOwner.Hex(), records[0].Owner)

	assert.Equal(t, uint64(9), records[1].OrderID)
	assert.Equal(t, domain.SideSell, records[1].Side)
}

func TestDecodeCreationsSkipsOtherEvents(t *testing.T) {
	logs := []*types.Log{
		{Address: testContract, Topics: []common.Hash{common.HexToHash("0xdead")}},
	}
	records, err := decodeCreations(testContract, logs)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUnpackMarketParams(t *testing.T) {
	outputs := orderbookABI.Methods["getMarketParams"].Outputs
	data, err := outputs.Pack(
		big.NewInt(100), big.NewInt(1000000),
		testOwner, big.NewInt(18),
		testOwner, big.NewInt(6),
		big.NewInt(5), big.NewInt(100000), big.NewInt(1000000000),
		big.NewInt(30), big.NewInt(10),
	)
	require.NoError(t, err)

	params, err := unpackMarketParams(data)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketParams{
		PricePrecision: 100,
		SizePrecision:  1000000,
		TickSize:       5,
		MinSize:        100000,
		MaxSize:        1000000000,
		TakerFeeBps:    30,
		MakerFeeBps:    10,
	}, params)
}
