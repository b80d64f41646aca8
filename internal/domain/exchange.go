package domain

import "context"

// BatchCall is the flattened argument set for one batch transaction:
// new limit orders split per side plus ids to cancel, all in integer
// units. Order within each slice is submission order.
type BatchCall struct {
	Market     string
	BuyPrices  []int64
	BuySizes   []int64
	SellPrices []int64
	SellSizes  []int64
	CancelIDs  []uint64
	PostOnly   bool
}

// MarketCall is a single market-order execution request.
type MarketCall struct {
	Market     string
	Side       Side
	Size       int64
	MinOut     int64
	FillOrKill bool
}

// CreationRecord is one decoded order-creation log from a mined
// transaction, in the order the logs appear in the receipt.
type CreationRecord struct {
	OrderID uint64
	Owner   string
	Side    Side
	Price   int64
	Size    int64
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash    string
	Block     uint64
	Reverted  bool
	Creations []CreationRecord
}

// Submitter sends transactions to the exchange and waits for receipts.
type Submitter interface {
	// SubmitBatch sends one batchUpdate transaction and blocks until it
	// is mined, returning the decoded receipt.
	SubmitBatch(ctx context.Context, call BatchCall) (Receipt, error)
	// SubmitMarket sends one market-order transaction and blocks until
	// it is mined.
	SubmitMarket(ctx context.Context, call MarketCall) (Receipt, error)
	// CancelOrders sends one batchCancelOrders transaction.
	CancelOrders(ctx context.Context, market string, orderIDs []uint64) (Receipt, error)
}

// SnapshotSource fetches a wholesale book image for resynchronization.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, market string) (BookSnapshot, error)
}

// ParamsSource fetches the precision constants for a market.
type ParamsSource interface {
	FetchMarketParams(ctx context.Context, market string) (MarketParams, error)
}
