package domain

// Event is a push-feed message for one market. The reconciler applies
// events strictly in arrival order; connectivity markers travel through
// the same inbox so their ordering relative to events is preserved.
type Event interface {
	EventMarket() string
}

// OrderCreatedEvent signals that the exchange accepted an order. When
// Canceled is true the order was accepted and immediately canceled
// (post-only cross) and never rested on the book.
type OrderCreatedEvent struct {
	Market   string
	OrderID  uint64
	Owner    string
	Side     Side
	Price    int64 // integer price units
	Size     int64 // remaining size in integer units
	Canceled bool
	Block    uint64
}

func (e OrderCreatedEvent) EventMarket() string { return e.Market }

// TradedEvent signals a fill against a resting order. UpdatedSize is the
// maker order's remaining size after the fill; FilledSize is the amount
// traded in this event.
type TradedEvent struct {
	Market      string
	OrderID     uint64
	Side        Side // maker side
	Price       int64
	UpdatedSize int64
	FilledSize  int64
	Taker       string
	Block       uint64
	TxHash      string
}

func (e TradedEvent) EventMarket() string { return e.Market }

// OrdersCanceledEvent signals that one or more resting orders were
// canceled on-chain.
type OrdersCanceledEvent struct {
	Market   string
	OrderIDs []uint64
	Owner    string
	Block    uint64
}

func (e OrdersCanceledEvent) EventMarket() string { return e.Market }

// ConnectedEvent marks the feed (re)establishing its connection for a
// market. The reconciler responds by resynchronizing from a snapshot.
type ConnectedEvent struct {
	Market string
	// Resumed is false on the first connection of the process, true on
	// any reconnect after a gap.
	Resumed bool
}

func (e ConnectedEvent) EventMarket() string { return e.Market }

// DisconnectedEvent marks the feed dropping for a market. Book state is
// stale until the next ConnectedEvent completes a resync.
type DisconnectedEvent struct {
	Market string
	Err    error
}

func (e DisconnectedEvent) EventMarket() string { return e.Market }
