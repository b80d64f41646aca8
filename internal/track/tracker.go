package track

import (
	"fmt"
	"sync"
	"time"

	"github.com/curvelab/monbot/internal/domain"
)

// Tracker holds the lifecycle record of every client order, keyed by
// cloid. Records are never destroyed; terminal states (Filled,
// Cancelled, Failed) are absorbing, so mutations against a terminal
// order are silently ignored rather than treated as errors. Late push
// events for an already-settled order are expected traffic.
type Tracker struct {
	mu     sync.RWMutex
	orders map[string]*domain.ClientOrder
	// onTerminal fires after an order first enters a terminal state,
	// outside the lock.
	onTerminal func(domain.ClientOrder)
}

// NewTracker returns an empty tracker. onTerminal may be nil.
func NewTracker(onTerminal func(domain.ClientOrder)) *Tracker {
	return &Tracker{
		orders:     make(map[string]*domain.ClientOrder),
		onTerminal: onTerminal,
	}
}

// Register creates a Pending record for a normalized order. Cloids are
// unique for the life of the process; reusing one is an error.
func (t *Tracker) Register(norm domain.NormalizedOrder) (domain.ClientOrder, error) {
	cloid := norm.Intent.Cloid
	if cloid == "" {
		return domain.ClientOrder{}, fmt.Errorf("track: register: empty cloid: %w", domain.ErrInvalidOrder)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.orders[cloid]; ok {
		return domain.ClientOrder{}, fmt.Errorf("track: register %s: cloid in use: %w", cloid, domain.ErrInvalidOrder)
	}
	now := time.Now().UTC()
	order := &domain.ClientOrder{
		Cloid:     cloid,
		Market:    norm.Intent.Market,
		Side:      norm.Intent.Side,
		Price:     norm.Price,
		Size:      norm.Size,
		Remaining: norm.Size,
		State:     domain.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.orders[cloid] = order
	return *order, nil
}

// Get returns a copy of the record for cloid.
func (t *Tracker) Get(cloid string) (domain.ClientOrder, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	order, ok := t.orders[cloid]
	if !ok {
		return domain.ClientOrder{}, fmt.Errorf("track: get %s: %w", cloid, domain.ErrNotFound)
	}
	return *order, nil
}

// All returns copies of every record, in no particular order.
func (t *Tracker) All() []domain.ClientOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.ClientOrder, 0, len(t.orders))
	for _, order := range t.orders {
		out = append(out, *order)
	}
	return out
}

// MarkActive moves a Pending order to Active with its exchange id and
// the remaining size reported at creation.
func (t *Tracker) MarkActive(cloid string, orderID uint64, remaining int64, txHash string) (domain.ClientOrder, error) {
	return t.mutate(cloid, func(o *domain.ClientOrder) {
		if o.State != domain.StatePending {
			return
		}
		o.State = domain.StateActive
		o.OrderID = orderID
		o.Remaining = remaining
		if txHash != "" {
			o.TxHash = txHash
		}
	})
}

// ApplyRemaining records a fill: the order's remaining size drops to
// the given value, and the state becomes Filled at zero or
// PartiallyFilled otherwise.
func (t *Tracker) ApplyRemaining(cloid string, remaining int64) (domain.ClientOrder, error) {
	return t.mutate(cloid, func(o *domain.ClientOrder) {
		if remaining < 0 {
			remaining = 0
		}
		o.Remaining = remaining
		if remaining == 0 {
			o.State = domain.StateFilled
		} else {
			o.State = domain.StatePartiallyFilled
		}
	})
}

// MarkCancelled moves an order to Cancelled. When zeroRemaining is true
// the remaining size is also cleared; the receipt path leaves it in
// place so the event path can still decrement the book by it.
func (t *Tracker) MarkCancelled(cloid string, zeroRemaining bool) (domain.ClientOrder, error) {
	return t.mutate(cloid, func(o *domain.ClientOrder) {
		o.State = domain.StateCancelled
		if zeroRemaining {
			o.Remaining = 0
		}
	})
}

// ClearRemaining zeroes the remaining size without touching state. The
// event path uses it after decrementing the book for a cancel the
// receipt path already confirmed, where the record is Cancelled but
// still carries its pre-cancel remaining.
func (t *Tracker) ClearRemaining(cloid string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[cloid]
	if !ok {
		return fmt.Errorf("track: clear remaining %s: %w", cloid, domain.ErrNotFound)
	}
	order.Remaining = 0
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed moves a Pending order to Failed, e.g. after a reverted
// submission.
func (t *Tracker) MarkFailed(cloid string) (domain.ClientOrder, error) {
	return t.mutate(cloid, func(o *domain.ClientOrder) {
		if o.State != domain.StatePending {
			return
		}
		o.State = domain.StateFailed
	})
}

// mutate applies fn to the record under the lock. Terminal records are
// returned unchanged. The terminal callback fires when fn moved the
// order into a terminal state.
func (t *Tracker) mutate(cloid string, fn func(*domain.ClientOrder)) (domain.ClientOrder, error) {
	t.mu.Lock()
	order, ok := t.orders[cloid]
	if !ok {
		t.mu.Unlock()
		return domain.ClientOrder{}, fmt.Errorf("track: mutate %s: %w", cloid, domain.ErrNotFound)
	}
	if order.State.Terminal() {
		out := *order
		t.mu.Unlock()
		return out, nil
	}
	fn(order)
	order.UpdatedAt = time.Now().UTC()
	out := *order
	t.mu.Unlock()

	if out.State.Terminal() && t.onTerminal != nil {
		t.onTerminal(out)
	}
	return out, nil
}
