// Package engine owns the per-market order lifecycle: batch submission
// with receipt log matching, cancel resolution, and the event
// reconciler that keeps the book view and order states current.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/curvelab/monbot/internal/book"
	"github.com/curvelab/monbot/internal/domain"
	"github.com/curvelab/monbot/internal/precision"
	"github.com/curvelab/monbot/internal/track"
)

const defaultInboxSize = 1024

// Options tunes an Engine.
type Options struct {
	// InboxSize bounds the event inbox. The feed blocks when it fills.
	InboxSize int
	// OnTerminal fires whenever an order first reaches a terminal
	// state, e.g. to persist or alert. May be nil.
	OnTerminal func(domain.ClientOrder)
}

// Engine is the lifecycle owner for one market. All book and order
// state mutations funnel through it: the submission path via receipt
// matching, the push feed via the single reconciler goroutine consuming
// the inbox. Markets are independent; run one Engine per market.
type Engine struct {
	market    string
	norm      *precision.Normalizer
	submitter domain.Submitter
	snapshots domain.SnapshotSource
	table     *track.ResolutionTable
	tracker   *track.Tracker
	book      *book.Book
	inbox     chan domain.Event
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[bucketKey][]string // unresolved cloids, FIFO per bucket

	// Reconciler-goroutine state, no locking.
	foreign  map[uint64]*foreignOrder
	dropping bool
}

// foreignOrder shadows a resting order owned by another participant, so
// later trades and cancels against it keep the aggregate levels right.
type foreignOrder struct {
	side      domain.Side
	price     int64
	remaining int64
}

// New builds an Engine for one market.
func New(market string, norm *precision.Normalizer, submitter domain.Submitter, snapshots domain.SnapshotSource, logger *slog.Logger, opts Options) *Engine {
	size := opts.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	return &Engine{
		market:    market,
		norm:      norm,
		submitter: submitter,
		snapshots: snapshots,
		table:     track.NewResolutionTable(),
		tracker:   track.NewTracker(opts.OnTerminal),
		book:      book.New(market),
		inbox:     make(chan domain.Event, size),
		logger:    logger.With(slog.String("component", "engine"), slog.String("market", market)),
	}
}

// Market returns the market this engine owns.
func (e *Engine) Market() string { return e.market }

// State returns the lifecycle record for a cloid.
func (e *Engine) State(cloid string) (domain.ClientOrder, error) {
	return e.tracker.Get(cloid)
}

// Orders returns every tracked order.
func (e *Engine) Orders() []domain.ClientOrder {
	return e.tracker.All()
}

// Book returns a read-only copy of the current book view.
func (e *Engine) Book() domain.BookSnapshot {
	return e.book.Snapshot()
}

// Warm preloads the book from a previously mirrored snapshot. The book
// stays marked stale until the first live resync confirms it.
func (e *Engine) Warm(snap domain.BookSnapshot) bool {
	if !e.book.Replace(snap) {
		return false
	}
	e.book.MarkStale()
	return true
}

// BookStale reports whether the book is known to be behind.
func (e *Engine) BookStale() bool {
	return e.book.Stale()
}

// Resolve returns the exchange id bound to a cloid.
func (e *Engine) Resolve(cloid string) (uint64, error) {
	return e.table.Resolve(cloid)
}

// Deliver queues one push event for the reconciler, blocking if the
// inbox is full. The feed calls this for events and for connectivity
// markers; both travel through the same inbox so ordering holds.
func (e *Engine) Deliver(ctx context.Context, ev domain.Event) error {
	select {
	case e.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ----------------------------------------------------------------------------
// Submission path
// ----------------------------------------------------------------------------

// batchPlan is everything needed to send and settle one batch.
type batchPlan struct {
	call   domain.BatchCall
	orders []domain.NormalizedOrder
	// cancels maps each cancel target to its resolved exchange id;
	// cloid is empty for id-only targets.
	cancels []domain.CancelRef
}

// SubmitBatch normalizes and sends a batch of limit and cancel intents
// as one transaction, waits for the receipt, matches creation logs back
// to cloids, and returns per-cloid outcomes in intent order.
//
// Validation failures (bad magnitude, unresolved cancel target) reject
// the whole batch before any transaction is built. If ctx is cancelled
// while waiting for the receipt, SubmitBatch returns early but the
// matcher still runs to completion in the background so no cloid is
// left permanently Pending.
func (e *Engine) SubmitBatch(ctx context.Context, intents []domain.OrderIntent) ([]domain.Outcome, error) {
	plan, err := e.planBatch(intents)
	if err != nil {
		return nil, err
	}
	if len(plan.orders) == 0 && len(plan.cancels) == 0 {
		return nil, fmt.Errorf("engine: empty batch: %w", domain.ErrInvalidOrder)
	}

	for _, o := range plan.orders {
		if _, err := e.tracker.Register(o); err != nil {
			return nil, err
		}
		e.addPending(o.Intent.Cloid, o.Intent.Side, o.Price)
	}

	resCh := make(chan batchResult, 1)
	go e.settleBatch(context.WithoutCancel(ctx), plan, resCh)

	select {
	case res := <-resCh:
		return res.outcomes, res.err
	case <-ctx.Done():
		e.logger.Warn("caller abandoned receipt wait", slog.Int("intents", len(intents)))
		return nil, ctx.Err()
	}
}

// SubmitMarket sends one market execution transaction. Market orders
// never rest on the book and are excluded from log matching; a mined
// success settles the order as Filled, a revert as Failed.
func (e *Engine) SubmitMarket(ctx context.Context, intent domain.OrderIntent) (domain.Outcome, error) {
	if intent.Kind != domain.KindMarket {
		return domain.Outcome{}, fmt.Errorf("engine: submit market: kind %q: %w", intent.Kind, domain.ErrInvalidOrder)
	}
	intent.Market = e.market
	if intent.Cloid == "" {
		intent.Cloid = uuid.NewString()
	}
	norm, err := e.norm.NormalizeIntent(intent)
	if err != nil {
		return domain.Outcome{}, err
	}
	if _, err := e.tracker.Register(norm); err != nil {
		return domain.Outcome{}, err
	}

	resCh := make(chan domain.Outcome, 1)
	go e.settleMarket(context.WithoutCancel(ctx), norm, resCh)

	select {
	case out := <-resCh:
		return out, out.Err
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// Cancel resolves one order and sends a single-order cancel
// transaction. A cloid with no binding fails fast with
// ErrUnresolvedOrder; no transaction is built for an order the client
// cannot identify on-chain.
func (e *Engine) Cancel(ctx context.Context, ref domain.CancelRef) error {
	ref, err := e.resolveCancel(ref)
	if err != nil {
		return err
	}

	receipt, err := e.submitter.CancelOrders(ctx, e.market, []uint64{ref.OrderID})
	if err != nil {
		return fmt.Errorf("engine: cancel %d: %w", ref.OrderID, err)
	}
	if receipt.Reverted {
		return fmt.Errorf("engine: cancel %d: %w", ref.OrderID, domain.ErrSubmissionReverted)
	}
	e.confirmCancel(ref)
	return nil
}

func (e *Engine) planBatch(intents []domain.OrderIntent) (batchPlan, error) {
	plan := batchPlan{call: domain.BatchCall{Market: e.market, PostOnly: len(intents) > 0}}

	for i := range intents {
		intent := intents[i]
		intent.Market = e.market
		switch intent.Kind {
		case domain.KindLimit:
			if intent.Cloid == "" {
				intent.Cloid = uuid.NewString()
			}
			norm, err := e.norm.NormalizeIntent(intent)
			if err != nil {
				return batchPlan{}, err
			}
			plan.orders = append(plan.orders, norm)
			if intent.Side == domain.SideBuy {
				plan.call.BuyPrices = append(plan.call.BuyPrices, norm.Price)
				plan.call.BuySizes = append(plan.call.BuySizes, norm.Size)
			} else {
				plan.call.SellPrices = append(plan.call.SellPrices, norm.Price)
				plan.call.SellSizes = append(plan.call.SellSizes, norm.Size)
			}
			// The contract takes one post-only flag for the whole
			// batch, so it is set only when every limit intent asks
			// for it.
			plan.call.PostOnly = plan.call.PostOnly && intent.PostOnly
		case domain.KindCancel:
			refs, err := e.resolveCancelIntent(intent)
			if err != nil {
				return batchPlan{}, err
			}
			for _, ref := range refs {
				plan.cancels = append(plan.cancels, ref)
				plan.call.CancelIDs = append(plan.call.CancelIDs, ref.OrderID)
			}
		case domain.KindMarket:
			return batchPlan{}, fmt.Errorf("engine: market intents use SubmitMarket: %w", domain.ErrInvalidOrder)
		default:
			return batchPlan{}, fmt.Errorf("engine: intent kind %q: %w", intent.Kind, domain.ErrInvalidOrder)
		}
	}
	if len(plan.orders) == 0 {
		plan.call.PostOnly = false
	}
	return plan, nil
}

func (e *Engine) resolveCancelIntent(intent domain.OrderIntent) ([]domain.CancelRef, error) {
	var refs []domain.CancelRef
	for _, cloid := range intent.CancelCloids {
		ref, err := e.resolveCancel(domain.CancelRef{Cloid: cloid})
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	for _, id := range intent.CancelOrderIDs {
		ref, err := e.resolveCancel(domain.CancelRef{OrderID: id})
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (e *Engine) resolveCancel(ref domain.CancelRef) (domain.CancelRef, error) {
	if ref.OrderID != 0 {
		if ref.Cloid == "" {
			ref.Cloid, _ = e.table.CloidOf(ref.OrderID)
		}
		return ref, nil
	}
	id, err := e.table.Resolve(ref.Cloid)
	if err != nil {
		return domain.CancelRef{}, err
	}
	ref.OrderID = id
	return ref, nil
}

// confirmCancel records a mined cancel. The remaining size is kept so
// the push-path cancel event can still decrement the book by it.
func (e *Engine) confirmCancel(ref domain.CancelRef) {
	if ref.Cloid == "" {
		return
	}
	if _, err := e.tracker.MarkCancelled(ref.Cloid, false); err != nil {
		e.logger.Warn("cancel confirm", slog.String("cloid", ref.Cloid), slog.Any("error", err))
	}
}

type batchResult struct {
	outcomes []domain.Outcome
	err      error
}

// settleBatch sends the transaction, waits for the receipt, and settles
// every intent. It runs detached from the caller's context.
func (e *Engine) settleBatch(ctx context.Context, plan batchPlan, resCh chan<- batchResult) {
	receipt, err := e.submitter.SubmitBatch(ctx, plan.call)
	if err != nil {
		e.failBatch(plan, err)
		resCh <- batchResult{outcomes: e.failedOutcomes(plan, err), err: err}
		return
	}
	if receipt.Reverted {
		err := fmt.Errorf("engine: batch %s: %w", receipt.TxHash, domain.ErrSubmissionReverted)
		e.failBatch(plan, err)
		resCh <- batchResult{outcomes: e.failedOutcomes(plan, err), err: err}
		return
	}

	outcomes := e.matchAndBind(plan, receipt)
	for _, ref := range plan.cancels {
		e.confirmCancel(ref)
		state := domain.StateCancelled
		outcomes = append(outcomes, domain.Outcome{Cloid: ref.Cloid, OrderID: ref.OrderID, State: state})
	}
	resCh <- batchResult{outcomes: outcomes}
}

// matchAndBind pairs creation records with pending intents and applies
// the results: matched cloids are bound and marked Active, ambiguous
// buckets are reported and left unbound.
func (e *Engine) matchAndBind(plan batchPlan, receipt domain.Receipt) []domain.Outcome {
	res := matchCreations(plan.orders, receipt.Creations)

	byCloid := make(map[string]domain.Outcome, len(plan.orders))
	for _, pair := range res.pairs {
		outcome := domain.Outcome{Cloid: pair.cloid, OrderID: pair.record.OrderID, State: domain.StateActive}
		if err := e.table.Bind(pair.cloid, pair.record.OrderID); err != nil {
			outcome.Err = err
			byCloid[pair.cloid] = outcome
			continue
		}
		if _, err := e.tracker.MarkActive(pair.cloid, pair.record.OrderID, pair.record.Size, receipt.TxHash); err != nil {
			outcome.Err = err
		}
		byCloid[pair.cloid] = outcome
	}
	for _, cloid := range res.ambiguous {
		byCloid[cloid] = domain.Outcome{
			Cloid: cloid,
			State: domain.StatePending,
			Err:   fmt.Errorf("engine: cloid %s: %w", cloid, domain.ErrAmbiguousMatch),
		}
	}
	for _, rec := range res.leftover {
		e.logger.Warn("unmatched creation record",
			slog.Uint64("order_id", rec.OrderID),
			slog.Int64("price", rec.Price),
			slog.String("side", string(rec.Side)))
	}

	outcomes := make([]domain.Outcome, 0, len(plan.orders))
	for _, o := range plan.orders {
		e.removePending(o.Intent.Cloid, o.Intent.Side, o.Price)
		outcomes = append(outcomes, byCloid[o.Intent.Cloid])
	}
	return outcomes
}

func (e *Engine) failBatch(plan batchPlan, cause error) {
	e.logger.Error("batch failed", slog.Any("error", cause))
	for _, o := range plan.orders {
		e.removePending(o.Intent.Cloid, o.Intent.Side, o.Price)
		if _, err := e.tracker.MarkFailed(o.Intent.Cloid); err != nil {
			e.logger.Warn("mark failed", slog.String("cloid", o.Intent.Cloid), slog.Any("error", err))
		}
	}
}

func (e *Engine) failedOutcomes(plan batchPlan, cause error) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(plan.orders)+len(plan.cancels))
	for _, o := range plan.orders {
		outcomes = append(outcomes, domain.Outcome{Cloid: o.Intent.Cloid, State: domain.StateFailed, Err: cause})
	}
	for _, ref := range plan.cancels {
		outcomes = append(outcomes, domain.Outcome{Cloid: ref.Cloid, OrderID: ref.OrderID, Err: cause})
	}
	return outcomes
}

func (e *Engine) settleMarket(ctx context.Context, norm domain.NormalizedOrder, resCh chan<- domain.Outcome) {
	cloid := norm.Intent.Cloid
	receipt, err := e.submitter.SubmitMarket(ctx, domain.MarketCall{
		Market:     e.market,
		Side:       norm.Intent.Side,
		Size:       norm.Size,
		MinOut:     norm.MinOut,
		FillOrKill: norm.Intent.FillOrKill,
	})
	switch {
	case err != nil:
		e.tracker.MarkFailed(cloid)
		resCh <- domain.Outcome{Cloid: cloid, State: domain.StateFailed, Err: err}
	case receipt.Reverted:
		err := fmt.Errorf("engine: market order %s: %w", receipt.TxHash, domain.ErrSubmissionReverted)
		e.tracker.MarkFailed(cloid)
		resCh <- domain.Outcome{Cloid: cloid, State: domain.StateFailed, Err: err}
	default:
		e.tracker.ApplyRemaining(cloid, 0)
		resCh <- domain.Outcome{Cloid: cloid, State: domain.StateFilled}
	}
}

// ----------------------------------------------------------------------------
// Pending bucket queues
// ----------------------------------------------------------------------------

func (e *Engine) addPending(cloid string, side domain.Side, price int64) {
	k := bucketKey{side: side, price: price}
	e.mu.Lock()
	if e.pending == nil {
		e.pending = make(map[bucketKey][]string)
	}
	e.pending[k] = append(e.pending[k], cloid)
	e.mu.Unlock()
}

// takePending pops the oldest unresolved cloid for a bucket, used by
// the event path to attribute a creation event to a local intent.
func (e *Engine) takePending(side domain.Side, price int64) (string, bool) {
	k := bucketKey{side: side, price: price}
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.pending[k]
	if len(q) == 0 {
		return "", false
	}
	cloid := q[0]
	if len(q) == 1 {
		delete(e.pending, k)
	} else {
		e.pending[k] = q[1:]
	}
	return cloid, true
}

func (e *Engine) removePending(cloid string, side domain.Side, price int64) {
	k := bucketKey{side: side, price: price}
	e.mu.Lock()
	defer e.mu.Unlock()

	q := e.pending[k]
	for i, c := range q {
		if c == cloid {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(e.pending, k)
	} else {
		e.pending[k] = q
	}
}
