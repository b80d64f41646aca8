// Package maker runs a minimal two-sided quoting loop on top of the
// order engine: derive bid and ask from the book mid, then
// cancel-and-replace both quotes on a fixed interval.
package maker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/curvelab/monbot/internal/domain"
	"github.com/curvelab/monbot/internal/precision"
)

// Trader is the slice of the order engine the quoter drives.
type Trader interface {
	SubmitBatch(ctx context.Context, intents []domain.OrderIntent) ([]domain.Outcome, error)
	Book() domain.BookSnapshot
	BookStale() bool
	State(cloid string) (domain.ClientOrder, error)
}

// Config tunes one market's quoting loop.
type Config struct {
	// SpreadBps is the half-spread in basis points of mid.
	SpreadBps int64
	// Size is the quote size as a decimal string in base units.
	Size string
	// Interval is the cancel-and-replace period.
	Interval time.Duration
	// PostOnly rejects quotes that would cross.
	PostOnly bool
}

// Quoter keeps a single bid/ask pair resting on one market.
type Quoter struct {
	market string
	trader Trader
	norm   *precision.Normalizer
	cfg    Config
	logger *slog.Logger

	// live holds the cloids of the previous round's quotes.
	live []string
}

// New creates a Quoter for one market.
func New(market string, trader Trader, norm *precision.Normalizer, cfg Config, logger *slog.Logger) (*Quoter, error) {
	if cfg.SpreadBps <= 0 {
		return nil, fmt.Errorf("maker: spread must be positive, got %d bps", cfg.SpreadBps)
	}
	if _, err := norm.NormalizeSize(cfg.Size); err != nil {
		return nil, fmt.Errorf("maker: quote size: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Second
	}
	return &Quoter{
		market: market,
		trader: trader,
		norm:   norm,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "quoter"),
			slog.String("market", market),
		),
	}, nil
}

// Run quotes until the context is cancelled. Errors on individual
// rounds are logged and the loop continues; only context cancellation
// stops it.
func (q *Quoter) Run(ctx context.Context) error {
	q.logger.Info("quoter started",
		slog.Int64("spread_bps", q.cfg.SpreadBps),
		slog.String("size", q.cfg.Size),
		slog.Duration("interval", q.cfg.Interval))
	defer q.logger.Info("quoter stopped")

	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := q.Requote(ctx); err != nil {
				q.logger.Warn("requote failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Requote runs one cancel-and-replace round: pull the previous pair
// (those still resting) and place a fresh pair around the current mid.
func (q *Quoter) Requote(ctx context.Context) error {
	if q.trader.BookStale() {
		q.logger.Debug("book stale, skipping round")
		return nil
	}

	bid, ask, ok := q.quotePrices()
	if !ok {
		q.logger.Debug("book one-sided or empty, skipping round")
		return nil
	}

	intents := make([]domain.OrderIntent, 0, 3)
	if resting := q.restingCloids(); len(resting) > 0 {
		intents = append(intents, domain.OrderIntent{
			Market:       q.market,
			Kind:         domain.KindCancel,
			CancelCloids: resting,
		})
	}
	intents = append(intents,
		domain.OrderIntent{
			Market:   q.market,
			Kind:     domain.KindLimit,
			Side:     domain.SideBuy,
			Price:    q.norm.DenormalizePrice(bid),
			Size:     q.cfg.Size,
			PostOnly: q.cfg.PostOnly,
		},
		domain.OrderIntent{
			Market:   q.market,
			Kind:     domain.KindLimit,
			Side:     domain.SideSell,
			Price:    q.norm.DenormalizePrice(ask),
			Size:     q.cfg.Size,
			PostOnly: q.cfg.PostOnly,
		},
	)

	outcomes, err := q.trader.SubmitBatch(ctx, intents)
	if err != nil {
		return fmt.Errorf("maker: submit quotes: %w", err)
	}

	next := make([]string, 0, 2)
	for _, out := range outcomes {
		if out.Err != nil {
			q.logger.Warn("quote not placed",
				slog.String("cloid", out.Cloid),
				slog.String("error", out.Err.Error()))
			continue
		}
		if out.State == domain.StateActive {
			next = append(next, out.Cloid)
		}
	}
	q.live = next

	q.logger.Debug("quotes replaced",
		slog.Int64("bid", bid),
		slog.Int64("ask", ask),
		slog.Int("resting", len(next)))
	return nil
}

// quotePrices derives tick-aligned bid and ask around the book mid.
func (q *Quoter) quotePrices() (bid, ask int64, ok bool) {
	book := q.trader.Book()
	bestBid, okBid := book.BestBid()
	bestAsk, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return 0, 0, false
	}

	mid := (bestBid.Price + bestAsk.Price) / 2
	half := mid * q.cfg.SpreadBps / 10_000
	tick := int64(q.norm.Params().TickSize)

	// Bid rounds down to tick, ask rounds up, so the pair never crosses
	// its own mid.
	bid = (mid - half) / tick * tick
	ask = ((mid + half + tick - 1) / tick) * tick
	if bid <= 0 || ask <= bid {
		return 0, 0, false
	}
	return bid, ask, true
}

// restingCloids filters the previous round's pair down to quotes that
// are still resolved and resting. Quotes that filled or failed in the
// meantime must not be named in a cancel, and unresolved quotes would
// fail the whole batch.
func (q *Quoter) restingCloids() []string {
	resting := make([]string, 0, len(q.live))
	for _, cloid := range q.live {
		order, err := q.trader.State(cloid)
		if err != nil {
			continue
		}
		if !order.Resolved() || order.State.Terminal() {
			continue
		}
		resting = append(resting, cloid)
	}
	return resting
}
