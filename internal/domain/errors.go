package domain

import "errors"

var (
	// ErrInvalidMagnitude is returned when a price is not tick-aligned or a
	// size falls outside the market's [min_size, max_size] window. Orders
	// that fail this check are rejected before any transaction is built.
	ErrInvalidMagnitude = errors.New("price or size outside market constraints")

	// ErrUnresolvedOrder is returned when a cancel (or a resolution lookup)
	// references a cloid that has no exchange order id bound yet.
	ErrUnresolvedOrder = errors.New("cloid not resolved to an order id")

	// ErrAlreadyBound is returned when a cloid is bound to a second,
	// different order id. Rebinding the same id is a no-op.
	ErrAlreadyBound = errors.New("cloid already bound to a different order id")

	// ErrAmbiguousMatch is returned when a (side, price) bucket holds an
	// unequal number of pending intents and creation logs, so pairing them
	// would be a guess. Nothing in the bucket is bound.
	ErrAmbiguousMatch = errors.New("ambiguous log-to-intent match")

	// ErrSubmissionReverted is returned when the batch transaction was mined
	// with a failure status. Every intent in the batch is marked Failed.
	ErrSubmissionReverted = errors.New("batch transaction reverted")

	ErrNotFound     = errors.New("not found")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrInvalidOrder = errors.New("invalid order parameters")
)
