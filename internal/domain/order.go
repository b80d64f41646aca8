package domain

import "time"

// Side indicates whether this is a buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderKind selects the submission path for an intent.
type OrderKind string

const (
	KindLimit  OrderKind = "limit"
	KindMarket OrderKind = "market"
	KindCancel OrderKind = "cancel"
)

// OrderState tracks the lifecycle of a client order. Filled, Cancelled and
// Failed are terminal; no transition ever leaves a terminal state.
type OrderState string

const (
	StatePending         OrderState = "pending"
	StateActive          OrderState = "active"
	StatePartiallyFilled OrderState = "partially_filled"
	StateFilled          OrderState = "filled"
	StateCancelled       OrderState = "cancelled"
	StateFailed          OrderState = "failed"
)

// Terminal reports whether s is a final state.
func (s OrderState) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// OrderIntent is a client-side order request, immutable once submitted.
// Price and Size are decimal strings; normalization converts them to
// integer units per the market's precision constants.
type OrderIntent struct {
	Market   string
	Kind     OrderKind
	Side     Side
	Price    string // limit orders only
	Size     string
	PostOnly bool
	// MinOut is the minimum amount out for market orders, in the
	// counter-asset's decimal units.
	MinOut     string
	FillOrKill bool
	// Cloid is the client-chosen order identifier. Optional for cancels;
	// the engine generates one for limit intents that omit it.
	Cloid string
	// Cancel targets. A cancel intent must carry either order ids or
	// cloids already bound in the resolution table.
	CancelOrderIDs []uint64
	CancelCloids   []string
}

// NormalizedOrder is an OrderIntent with price and size converted to the
// exchange's fixed-point integer representation.
type NormalizedOrder struct {
	Intent OrderIntent
	Price  int64 // integer price units, tick-aligned (limit only)
	Size   int64 // integer size units within [min_size, max_size]
	MinOut int64 // market only
}

// ClientOrder is the tracked lifecycle record for one cloid. Remaining is
// authoritative once any push event has been applied to the order.
type ClientOrder struct {
	Cloid     string
	Market    string
	Side      Side
	Price     int64 // normalized; 0 for market orders
	Size      int64
	Remaining int64
	OrderID   uint64 // 0 until resolved
	State     OrderState
	TxHash    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resolved reports whether the order has been bound to an exchange id.
func (o ClientOrder) Resolved() bool { return o.OrderID != 0 }

// Outcome is the per-cloid result of a batch submission.
type Outcome struct {
	Cloid   string
	OrderID uint64
	State   OrderState
	Err     error
}

// CancelRef names an order to cancel, by cloid or by exchange id.
type CancelRef struct {
	Cloid   string
	OrderID uint64
}
