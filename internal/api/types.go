package api

// envelope is the indexer's double-wrapped response body.
type envelope[T any] struct {
	Data struct {
		Data []T `json:"data"`
	} `json:"data"`
}

// IndexedOrder is an order row as the indexer reports it.
type IndexedOrder struct {
	MarketAddress   string `json:"marketAddress"`
	OrderID         uint64 `json:"orderid"`
	Owner           string `json:"owner"`
	Size            int64  `json:"size"`
	Price           int64  `json:"price"`
	IsBuy           bool   `json:"isbuy"`
	RemainingSize   int64  `json:"remainingsize"`
	IsCanceled      bool   `json:"iscanceled"`
	BlockNumber     uint64 `json:"blocknumber"`
	TxIndex         uint64 `json:"txindex"`
	LogIndex        uint64 `json:"logindex"`
	TransactionHash string `json:"transactionhash"`
	TriggerTime     int64  `json:"triggertime"`
}

// IndexedTrade is a fill row as the indexer reports it.
type IndexedTrade struct {
	OrderID         uint64  `json:"orderid"`
	MakerAddress    string  `json:"makeraddress"`
	TakerAddress    string  `json:"takeraddress"`
	IsBuy           bool    `json:"isbuy"`
	Price           int64   `json:"price"`
	FilledSize      int64   `json:"filledsize"`
	BlockNumber     uint64  `json:"blocknumber"`
	TxIndex         uint64  `json:"txindex"`
	LogIndex        uint64  `json:"logindex"`
	TransactionHash string  `json:"transactionhash"`
	TriggerTime     int64   `json:"triggertime"`
	NativePrice     float64 `json:"monadPrice"`
}
