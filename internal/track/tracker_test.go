package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
)

func register(t *testing.T, tr *Tracker, cloid string, size int64) domain.ClientOrder {
	t.Helper()
	order, err := tr.Register(domain.NormalizedOrder{
		Intent: domain.OrderIntent{
			Cloid:  cloid,
			Market: "mon-usdc",
			Kind:   domain.KindLimit,
			Side:   domain.SideBuy,
		},
		Price: 10000,
		Size:  size,
	})
	require.NoError(t, err)
	return order
}

func TestLifecycleHappyPath(t *testing.T) {
	tr := NewTracker(nil)
	order := register(t, tr, "a", 100)
	assert.Equal(t, domain.StatePending, order.State)
	assert.Equal(t, int64(100), order.Remaining)

	order, err := tr.MarkActive("a", 7, 100, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, order.State)
	assert.Equal(t, uint64(7), order.OrderID)
	assert.True(t, order.Resolved())

	order, err = tr.ApplyRemaining("a", 40)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartiallyFilled, order.State)
	assert.Equal(t, int64(40), order.Remaining)

	order, err = tr.ApplyRemaining("a", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilled, order.State)
}

func TestTerminalStatesAbsorb(t *testing.T) {
	tr := NewTracker(nil)
	register(t, tr, "a", 100)

	_, err := tr.MarkCancelled("a", true)
	require.NoError(t, err)

	// Every further mutation is a no-op.
	order, err := tr.MarkActive("a", 9, 100, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, uint64(0), order.OrderID)

	order, err = tr.ApplyRemaining("a", 50)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, int64(0), order.Remaining)
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	tr := NewTracker(nil)
	register(t, tr, "a", 100)

	order, err := tr.MarkFailed("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, order.State)

	register(t, tr, "b", 100)
	_, err = tr.MarkActive("b", 3, 100, "")
	require.NoError(t, err)

	order, err = tr.MarkFailed("b")
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, order.State, "active orders cannot fail")
}

func TestCancelKeepsRemainingForReceiptPath(t *testing.T) {
	tr := NewTracker(nil)
	register(t, tr, "a", 100)
	_, err := tr.MarkActive("a", 5, 80, "")
	require.NoError(t, err)

	order, err := tr.MarkCancelled("a", false)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, int64(80), order.Remaining, "remaining kept for the book decrement")
}

func TestDuplicateCloidRejected(t *testing.T) {
	tr := NewTracker(nil)
	register(t, tr, "a", 100)

	_, err := tr.Register(domain.NormalizedOrder{
		Intent: domain.OrderIntent{Cloid: "a", Market: "mon-usdc"},
		Size:   1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestTerminalCallbackFiresOnce(t *testing.T) {
	var fired []domain.OrderState
	tr := NewTracker(func(o domain.ClientOrder) {
		fired = append(fired, o.State)
	})
	register(t, tr, "a", 100)

	_, err := tr.ApplyRemaining("a", 0)
	require.NoError(t, err)
	_, err = tr.MarkCancelled("a", true)
	require.NoError(t, err)

	require.Len(t, fired, 1)
	assert.Equal(t, domain.StateFilled, fired[0])
}

func TestUnknownCloid(t *testing.T) {
	tr := NewTracker(nil)
	_, err := tr.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = tr.ApplyRemaining("missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
