// Package track holds the client-side order identity and lifecycle
// tables: the cloid to exchange-id resolution table and the order state
// tracker.
package track

import (
	"fmt"
	"sync"

	"github.com/curvelab/monbot/internal/domain"
)

// ResolutionTable maps client order ids to exchange order ids. A
// binding is permanent: entries are never deleted or rewritten, so a
// resolved cloid stays resolved for the life of the process.
type ResolutionTable struct {
	mu      sync.RWMutex
	byCloid map[string]uint64
	byID    map[uint64]string
}

// NewResolutionTable returns an empty table.
func NewResolutionTable() *ResolutionTable {
	return &ResolutionTable{
		byCloid: make(map[string]uint64),
		byID:    make(map[uint64]string),
	}
}

// Bind records cloid -> orderID. Binding the same pair again is a
// no-op; binding a cloid to a different id is ErrAlreadyBound and
// leaves the existing entry untouched.
func (t *ResolutionTable) Bind(cloid string, orderID uint64) error {
	if cloid == "" || orderID == 0 {
		return fmt.Errorf("track: bind %q -> %d: %w", cloid, orderID, domain.ErrInvalidOrder)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byCloid[cloid]; ok {
		if existing == orderID {
			return nil
		}
		return fmt.Errorf("track: cloid %s bound to %d, refusing %d: %w",
			cloid, existing, orderID, domain.ErrAlreadyBound)
	}
	t.byCloid[cloid] = orderID
	t.byID[orderID] = cloid
	return nil
}

// Resolve returns the exchange id bound to cloid, or ErrUnresolvedOrder.
func (t *ResolutionTable) Resolve(cloid string) (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byCloid[cloid]
	if !ok {
		return 0, fmt.Errorf("track: resolve %s: %w", cloid, domain.ErrUnresolvedOrder)
	}
	return id, nil
}

// CloidOf returns the cloid bound to an exchange id, if any. Unknown
// ids are not an error; they usually belong to other participants.
func (t *ResolutionTable) CloidOf(orderID uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cloid, ok := t.byID[orderID]
	return cloid, ok
}

// Len returns the number of bindings.
func (t *ResolutionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byCloid)
}
