package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/curvelab/monbot/internal/domain"
)

const (
	resyncBaseDelay = 2 * time.Second
	resyncMaxDelay  = 60 * time.Second
)

// Run consumes the event inbox until ctx is cancelled. It is the single
// mutation point for the book view: events and connectivity markers are
// applied strictly in arrival order, one at a time.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("reconciler started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reconciler stopped")
			return ctx.Err()
		case ev := <-e.inbox:
			e.apply(ctx, ev)
		}
	}
}

func (e *Engine) apply(ctx context.Context, ev domain.Event) {
	switch ev := ev.(type) {
	case domain.ConnectedEvent:
		e.resync(ctx)
	case domain.DisconnectedEvent:
		e.logger.Warn("feed disconnected", slog.Any("error", ev.Err))
		e.book.MarkStale()
		// Anything still queued behind this marker predates the gap and
		// would be applied against a book about to be replaced.
		e.dropping = true
	case domain.OrderCreatedEvent:
		if e.dropping {
			return
		}
		e.applyCreated(ev)
	case domain.TradedEvent:
		if e.dropping {
			return
		}
		e.applyTraded(ev)
	case domain.OrdersCanceledEvent:
		if e.dropping {
			return
		}
		e.applyCanceled(ev)
	default:
		e.logger.Warn("unknown event type", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

// resync fetches a wholesale snapshot and replaces the book before any
// further events are applied. Fetch failures retry with backoff; events
// keep queueing in the inbox meanwhile and are applied on top of the
// fresh snapshot afterwards.
func (e *Engine) resync(ctx context.Context) {
	delay := resyncBaseDelay
	for {
		snap, err := e.snapshots.FetchSnapshot(ctx, e.market)
		if err == nil {
			applied := e.book.Replace(snap)
			e.dropping = false
			e.logger.Info("book resynced",
				slog.Uint64("block", snap.Block),
				slog.Bool("applied", applied),
				slog.Int("bids", len(snap.Bids)),
				slog.Int("asks", len(snap.Asks)))
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		e.logger.Error("snapshot fetch failed", slog.Any("error", err), slog.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay *= 2; delay > resyncMaxDelay {
			delay = resyncMaxDelay
		}
	}
}

// applyCreated handles an order acceptance. Our own orders are
// attributed either through an existing binding (receipt path won the
// race) or by taking the oldest unresolved pending intent with the same
// side and price. Everything else is another participant's order,
// shadowed so later events against it keep the levels right.
func (e *Engine) applyCreated(ev domain.OrderCreatedEvent) {
	cloid, bound := e.table.CloidOf(ev.OrderID)
	if !bound {
		if pendingCloid, ok := e.takePending(ev.Side, ev.Price); ok {
			if err := e.table.Bind(pendingCloid, ev.OrderID); err != nil {
				e.logger.Warn("event bind", slog.String("cloid", pendingCloid), slog.Any("error", err))
			} else {
				cloid, bound = pendingCloid, true
			}
		}
	}

	if ev.Canceled {
		// Accepted and immediately canceled: never rested, book untouched.
		if bound {
			if _, err := e.tracker.MarkCancelled(cloid, true); err != nil {
				e.logger.Warn("cancel on create", slog.String("cloid", cloid), slog.Any("error", err))
			}
		}
		return
	}

	if bound {
		if _, err := e.tracker.MarkActive(cloid, ev.OrderID, ev.Size, ""); err != nil {
			e.logger.Warn("activate", slog.String("cloid", cloid), slog.Any("error", err))
		}
	} else {
		e.foreignOrders()[ev.OrderID] = &foreignOrder{side: ev.Side, price: ev.Price, remaining: ev.Size}
	}
	e.book.Add(ev.Side, ev.Price, ev.Size)
}

// applyTraded handles a fill against a resting order. The book level
// drops by exactly the old remaining minus the updated remaining.
func (e *Engine) applyTraded(ev domain.TradedEvent) {
	if cloid, ok := e.table.CloidOf(ev.OrderID); ok {
		order, err := e.tracker.Get(cloid)
		if err != nil {
			e.logger.Warn("traded lookup", slog.String("cloid", cloid), slog.Any("error", err))
			return
		}
		if delta := order.Remaining - ev.UpdatedSize; delta > 0 {
			e.book.Reduce(order.Side, order.Price, delta)
		}
		if _, err := e.tracker.ApplyRemaining(cloid, ev.UpdatedSize); err != nil {
			e.logger.Warn("apply fill", slog.String("cloid", cloid), slog.Any("error", err))
		}
		return
	}

	if f, ok := e.foreignOrders()[ev.OrderID]; ok {
		if delta := f.remaining - ev.UpdatedSize; delta > 0 {
			e.book.Reduce(f.side, f.price, delta)
		}
		f.remaining = ev.UpdatedSize
		if f.remaining <= 0 {
			delete(e.foreignOrders(), ev.OrderID)
		}
		return
	}

	// Never saw this order created; the fill amount from the event is
	// the best available estimate of the level change.
	e.book.Reduce(ev.Side, ev.Price, ev.FilledSize)
}

// applyCanceled handles on-chain cancellations: each resolved order's
// remaining size leaves the book and the order settles Cancelled.
func (e *Engine) applyCanceled(ev domain.OrdersCanceledEvent) {
	for _, id := range ev.OrderIDs {
		if cloid, ok := e.table.CloidOf(id); ok {
			order, err := e.tracker.Get(cloid)
			if err != nil {
				e.logger.Warn("cancel lookup", slog.String("cloid", cloid), slog.Any("error", err))
				continue
			}
			if order.Remaining > 0 {
				e.book.Reduce(order.Side, order.Price, order.Remaining)
			}
			if _, err := e.tracker.MarkCancelled(cloid, true); err != nil {
				e.logger.Warn("cancel apply", slog.String("cloid", cloid), slog.Any("error", err))
			}
			// The receipt path may have already settled the state while
			// leaving remaining in place for this exact decrement.
			if err := e.tracker.ClearRemaining(cloid); err != nil {
				e.logger.Warn("clear remaining", slog.String("cloid", cloid), slog.Any("error", err))
			}
			continue
		}
		if f, ok := e.foreignOrders()[id]; ok {
			if f.remaining > 0 {
				e.book.Reduce(f.side, f.price, f.remaining)
			}
			delete(e.foreignOrders(), id)
		}
		// An id with no binding and no shadow entry predates our view;
		// nothing to update.
	}
}

func (e *Engine) foreignOrders() map[uint64]*foreignOrder {
	if e.foreign == nil {
		e.foreign = make(map[uint64]*foreignOrder)
	}
	return e.foreign
}
