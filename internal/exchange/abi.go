// Package exchange talks to the on-chain orderbook contract: calldata
// packing, receipt log decoding, packed book decoding, and the signing
// transaction backend.
package exchange

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// orderbookABIJSON covers the subset of the orderbook contract the
// client uses: batch order placement, batch cancels, market execution,
// the market parameter and packed book views, and the order creation
// event emitted for every accepted order.
const orderbookABIJSON = `[
  {"type":"function","name":"batchUpdate","stateMutability":"nonpayable","inputs":[
    {"name":"buyPrices","type":"uint256[]"},
    {"name":"buySizes","type":"uint256[]"},
    {"name":"sellPrices","type":"uint256[]"},
    {"name":"sellSizes","type":"uint256[]"},
    {"name":"orderIdsToCancel","type":"uint256[]"},
    {"name":"postOnly","type":"bool"}],"outputs":[]},
  {"type":"function","name":"batchCancelOrders","stateMutability":"nonpayable","inputs":[
    {"name":"orderIds","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"placeAndExecuteMarketBuy","stateMutability":"nonpayable","inputs":[
    {"name":"quoteSize","type":"uint256"},
    {"name":"minAmountOut","type":"uint256"},
    {"name":"useMargin","type":"bool"},
    {"name":"fillOrKill","type":"bool"}],"outputs":[]},
  {"type":"function","name":"placeAndExecuteMarketSell","stateMutability":"nonpayable","inputs":[
    {"name":"size","type":"uint256"},
    {"name":"minAmountOut","type":"uint256"},
    {"name":"useMargin","type":"bool"},
    {"name":"fillOrKill","type":"bool"}],"outputs":[]},
  {"type":"function","name":"getMarketParams","stateMutability":"view","inputs":[],"outputs":[
    {"name":"pricePrecision","type":"uint256"},
    {"name":"sizePrecision","type":"uint256"},
    {"name":"baseAsset","type":"address"},
    {"name":"baseAssetDecimals","type":"uint256"},
    {"name":"quoteAsset","type":"address"},
    {"name":"quoteAssetDecimals","type":"uint256"},
    {"name":"tickSize","type":"uint256"},
    {"name":"minSize","type":"uint256"},
    {"name":"maxSize","type":"uint256"},
    {"name":"takerFeeBps","type":"uint256"},
    {"name":"makerFeeBps","type":"uint256"}]},
  {"type":"function","name":"getL2Book","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"bytes"}]},
  {"type":"event","name":"OrderCreated","anonymous":false,"inputs":[
    {"name":"orderId","type":"uint256","indexed":false},
    {"name":"owner","type":"address","indexed":false},
    {"name":"size","type":"uint256","indexed":false},
    {"name":"price","type":"uint256","indexed":false},
    {"name":"isBuy","type":"bool","indexed":false}]}
]`

var orderbookABI = mustParseABI(orderbookABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic("exchange: parse orderbook abi: " + err.Error())
	}
	return parsed
}
