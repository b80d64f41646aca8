package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func TestParseOrderCreated(t *testing.T) {
	raw := []byte(`{
		"event": "OrderCreated",
		"market": "mon-usdc",
		"payload": {
			"orderId": 501,
			"ownerAddress": "0x2222222222222222222222222222222222222222",
			"size": 10000,
			"price": 20,
			"isBuy": true,
			"isCanceled": false,
			"blockNumber": 1234
		}
	}`)

	ev, err := parseMessage(raw)
	require.NoError(t, err)

	created, ok := ev.(domain.OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, "mon-usdc", created.Market)
	assert.Equal(t, uint64(501), created.OrderID)
	assert.Equal(t, domain.SideBuy, created.Side)
	assert.Equal(t, int64(20), created.Price)
	assert.Equal(t, int64(10000), created.Size)
	assert.False(t, created.Canceled)
	assert.Equal(t, uint64(1234), created.Block)
}

func TestParseTrade(t *testing.T) {
	raw := []byte(`{
		"event": "Trade",
		"market": "mon-usdc",
		"payload": {
			"orderId": 501,
			"isBuy": false,
			"price": 20,
			"updatedSize": 6000,
			"filledSize": 4000,
			"takerAddress": "0x3333333333333333333333333333333333333333",
			"blockNumber": 1240,
			"transactionHash": "0xabc"
		}
	}`)

	ev, err := parseMessage(raw)
	require.NoError(t, err)

	trade, ok := ev.(domain.TradedEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(501), trade.OrderID)
	assert.Equal(t, domain.SideSell, trade.Side)
	assert.Equal(t, int64(6000), trade.UpdatedSize)
	assert.Equal(t, int64(4000), trade.FilledSize)
	assert.Equal(t, "0xabc", trade.TxHash)
}

func TestParseOrdersCanceled(t *testing.T) {
	raw := []byte(`{
		"event": "OrdersCanceled",
		"market": "mon-usdc",
		"payload": {
			"orderIds": [501, 502],
			"makerAddress": "0x2222222222222222222222222222222222222222",
			"blockNumber": 1250
		}
	}`)

	ev, err := parseMessage(raw)
	require.NoError(t, err)

	canceled, ok := ev.(domain.OrdersCanceledEvent)
	require.True(t, ok)
	assert.Equal(t, []uint64{501, 502}, canceled.OrderIDs)
}

func TestParseUnknownEventDropped(t *testing.T) {
	ev, err := parseMessage([]byte(`{"event": "Heartbeat", "market": "mon-usdc", "payload": {}}`))
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestParseGarbage(t *testing.T) {
	_, err := parseMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = parseMessage([]byte(`{"event": "Trade", "market": "m", "payload": "nope"}`))
	assert.Error(t, err)
}
