package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/monbot/internal/domain"
	"github.com/curvelab/monbot/internal/precision"
)

// fakeSubmitter scripts receipts and records calls.
type fakeSubmitter struct {
	mu      sync.Mutex
	batches []domain.BatchCall
	markets []domain.MarketCall
	cancels [][]uint64

	receipt domain.Receipt
	err     error
	// gate, when set, blocks SubmitBatch until closed.
	gate chan struct{}
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, call domain.BatchCall) (domain.Receipt, error) {
	f.mu.Lock()
	f.batches = append(f.batches, call)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.receipt, f.err
}

func (f *fakeSubmitter) SubmitMarket(ctx context.Context, call domain.MarketCall) (domain.Receipt, error) {
	f.mu.Lock()
	f.markets = append(f.markets, call)
	f.mu.Unlock()
	return f.receipt, f.err
}

func (f *fakeSubmitter) CancelOrders(ctx context.Context, market string, ids []uint64) (domain.Receipt, error) {
	f.mu.Lock()
	f.cancels = append(f.cancels, ids)
	f.mu.Unlock()
	return f.receipt, f.err
}

type fakeSnapshots struct {
	mu    sync.Mutex
	snap  domain.BookSnapshot
	err   error
	calls int
}

func (f *fakeSnapshots) FetchSnapshot(ctx context.Context, market string) (domain.BookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls += 1
	return f.snap, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNormalizer(t *testing.T) *precision.Normalizer {
	t.Helper()
	n, err := precision.New(domain.MarketParams{
		PricePrecision: 100000000, // 8 decimal places
		SizePrecision:  1,
		TickSize:       1,
		MinSize:        1,
		MaxSize:        1000000000,
	})
	require.NoError(t, err)
	return n
}

func newTestEngine(t *testing.T, sub *fakeSubmitter, snaps *fakeSnapshots) *Engine {
	t.Helper()
	return New("mon-usdc", testNormalizer(t), sub, snaps, discardLogger(), Options{InboxSize: 16})
}

func buyIntent(cloid, price, size string) domain.OrderIntent {
	return domain.OrderIntent{Kind: domain.KindLimit, Side: domain.SideBuy, Cloid: cloid, Price: price, Size: size}
}

// Two buys at distinct prices resolve against the receipt's two
// creation records, in order.
func TestSubmitBatchResolvesCreations(t *testing.T) {
	sub := &fakeSubmitter{receipt: domain.Receipt{
		TxHash: "0xaaa",
		Creations: []domain.CreationRecord{
			{OrderID: 501, Side: domain.SideBuy, Price: 20, Size: 10000},
			{OrderID: 502, Side: domain.SideBuy, Price: 30, Size: 10000},
		},
	}}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	outcomes, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		buyIntent("mm_1", "0.0000002", "10000"),
		buyIntent("mm_2", "0.0000003", "10000"),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	id, err := e.Resolve("mm_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(501), id)
	id, err = e.Resolve("mm_2")
	require.NoError(t, err)
	assert.Equal(t, uint64(502), id)

	for _, cloid := range []string{"mm_1", "mm_2"} {
		order, err := e.State(cloid)
		require.NoError(t, err)
		assert.Equal(t, domain.StateActive, order.State)
		assert.Equal(t, int64(10000), order.Remaining)
		assert.Equal(t, "0xaaa", order.TxHash)
	}

	// The receipt path never touches the book; only events do.
	assert.Empty(t, e.Book().Bids)

	require.Len(t, sub.batches, 1)
	assert.Equal(t, []int64{20, 30}, sub.batches[0].BuyPrices)
	assert.Equal(t, []int64{10000, 10000}, sub.batches[0].BuySizes)
}

// Cancelling a cloid that was never submitted fails before any
// transaction is built.
func TestCancelUnresolvedFailsFast(t *testing.T) {
	sub := &fakeSubmitter{}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	err := e.Cancel(context.Background(), domain.CancelRef{Cloid: "mm_9"})
	assert.ErrorIs(t, err, domain.ErrUnresolvedOrder)
	assert.Empty(t, sub.cancels, "no transaction built")

	_, err = e.SubmitBatch(context.Background(), []domain.OrderIntent{
		{Kind: domain.KindCancel, CancelCloids: []string{"mm_9"}},
	})
	assert.ErrorIs(t, err, domain.ErrUnresolvedOrder)
	assert.Empty(t, sub.batches)
}

func TestSubmitBatchRevertFailsEverything(t *testing.T) {
	sub := &fakeSubmitter{receipt: domain.Receipt{TxHash: "0xdead", Reverted: true}}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	outcomes, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		buyIntent("mm_1", "0.0000002", "10000"),
	})
	assert.ErrorIs(t, err, domain.ErrSubmissionReverted)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StateFailed, outcomes[0].State)

	order, err := e.State("mm_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, order.State)

	_, err = e.Resolve("mm_1")
	assert.ErrorIs(t, err, domain.ErrUnresolvedOrder, "nothing bound on revert")
}

func TestSubmitBatchAmbiguousBucket(t *testing.T) {
	// Two intents share one bucket but only one creation comes back.
	sub := &fakeSubmitter{receipt: domain.Receipt{
		Creations: []domain.CreationRecord{
			{OrderID: 700, Side: domain.SideBuy, Price: 20, Size: 5},
			{OrderID: 701, Side: domain.SideBuy, Price: 30, Size: 5},
		},
	}}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	outcomes, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		buyIntent("a", "0.0000002", "5"),
		buyIntent("b", "0.0000002", "5"),
		buyIntent("c", "0.0000003", "5"),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.ErrorIs(t, outcomes[0].Err, domain.ErrAmbiguousMatch)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrAmbiguousMatch)
	assert.NoError(t, outcomes[2].Err, "other buckets resolve normally")
	assert.Equal(t, uint64(701), outcomes[2].OrderID)

	_, err = e.Resolve("a")
	assert.ErrorIs(t, err, domain.ErrUnresolvedOrder)
}

func TestSubmitBatchInvalidMagnitudeRejectsBeforeSend(t *testing.T) {
	sub := &fakeSubmitter{}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	_, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		buyIntent("a", "0.0000002", "99999999999"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMagnitude)
	assert.Empty(t, sub.batches)
}

// An abandoned receipt wait still settles the batch in the background.
func TestSubmitBatchDetachedMatcher(t *testing.T) {
	gate := make(chan struct{})
	sub := &fakeSubmitter{
		gate: gate,
		receipt: domain.Receipt{
			Creations: []domain.CreationRecord{{OrderID: 42, Side: domain.SideBuy, Price: 20, Size: 5}},
		},
	}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.SubmitBatch(ctx, []domain.OrderIntent{buyIntent("a", "0.0000002", "5")})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	order, err := e.State("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, order.State, "still pending while receipt outstanding")

	close(gate)
	require.Eventually(t, func() bool {
		order, err := e.State("a")
		return err == nil && order.State == domain.StateActive
	}, time.Second, 5*time.Millisecond, "matcher ran to completion after abandonment")

	id, err := e.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestCancelReceiptKeepsRemaining(t *testing.T) {
	sub := &fakeSubmitter{receipt: domain.Receipt{
		Creations: []domain.CreationRecord{{OrderID: 9, Side: domain.SideBuy, Price: 20, Size: 100}},
	}}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	_, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{buyIntent("a", "0.0000002", "100")})
	require.NoError(t, err)

	sub.receipt = domain.Receipt{}
	require.NoError(t, e.Cancel(context.Background(), domain.CancelRef{Cloid: "a"}))
	require.Len(t, sub.cancels, 1)
	assert.Equal(t, []uint64{9}, sub.cancels[0])

	order, err := e.State("a")
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, int64(100), order.Remaining, "kept for the event-path book decrement")
}

func TestSubmitMarket(t *testing.T) {
	sub := &fakeSubmitter{}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	out, err := e.SubmitMarket(context.Background(), domain.OrderIntent{
		Kind: domain.KindMarket, Side: domain.SideSell, Size: "50", Cloid: "mk_1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilled, out.State)

	require.Len(t, sub.markets, 1)
	assert.Equal(t, domain.SideSell, sub.markets[0].Side)
	assert.Equal(t, int64(50), sub.markets[0].Size)

	order, err := e.State("mk_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFilled, order.State)
}

func TestSubmitMarketRevert(t *testing.T) {
	sub := &fakeSubmitter{receipt: domain.Receipt{Reverted: true}}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	out, err := e.SubmitMarket(context.Background(), domain.OrderIntent{
		Kind: domain.KindMarket, Side: domain.SideBuy, Size: "50", Cloid: "mk_2",
	})
	assert.ErrorIs(t, err, domain.ErrSubmissionReverted)
	assert.Equal(t, domain.StateFailed, out.State)
}

func TestSubmitBatchRejectsMarketIntent(t *testing.T) {
	e := newTestEngine(t, &fakeSubmitter{}, &fakeSnapshots{})
	_, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		{Kind: domain.KindMarket, Side: domain.SideBuy, Size: "1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestSubmitBatchSendErrorFails(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("rpc down")}
	e := newTestEngine(t, sub, &fakeSnapshots{})

	outcomes, err := e.SubmitBatch(context.Background(), []domain.OrderIntent{
		buyIntent("a", "0.0000002", "5"),
	})
	require.Error(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.StateFailed, outcomes[0].State)
}
