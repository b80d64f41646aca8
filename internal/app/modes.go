package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/curvelab/monbot/internal/maker"
)

// bookMirrorInterval is how often each market's book is mirrored to Redis.
const bookMirrorInterval = 5 * time.Second

// indexerAuditInterval is how often local open orders are compared
// against the indexer.
const indexerAuditInterval = time.Minute

// TradeMode runs the full stack: per-market engines, the push feed, the
// Redis book mirror, and (when enabled) the quoting loop.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEngines(ctx, g, deps)
	if err := a.startFeed(ctx, g, deps); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	a.startBookMirror(ctx, g, deps)
	a.startIndexerAudit(ctx, g, deps)

	if a.cfg.Maker.Enabled {
		for symbol, eng := range deps.Engines {
			q, err := maker.New(symbol, eng, deps.Normalizers[symbol], maker.Config{
				SpreadBps: a.cfg.Maker.SpreadBps,
				Size:      a.cfg.Maker.Size,
				Interval:  a.cfg.Maker.Interval.Duration,
				PostOnly:  a.cfg.Maker.PostOnly,
			}, a.logger)
			if err != nil {
				return fmt.Errorf("trade mode: quoter %s: %w", symbol, err)
			}
			g.Go(func() error {
				return q.Run(ctx)
			})
		}
	} else {
		a.logger.InfoContext(ctx, "maker.enabled is false; orders come from external callers only")
	}

	return g.Wait()
}

// MonitorMode runs read-only tracking: engines consume the feed and
// mirror each market's book to Redis. No orders are placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startEngines(ctx, g, deps)
	if err := a.startFeed(ctx, g, deps); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	a.startBookMirror(ctx, g, deps)

	return g.Wait()
}

// ArchiveMode runs one archival pass: export terminal orders older than
// the retention cutoff to object storage, then exit.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Time("cutoff", cutoff),
		slog.Bool("prune", a.cfg.Archive.Prune),
	)

	count, err := deps.Archiver.ArchiveOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("orders", count))
	return nil
}

// startEngines runs one reconciler loop per market.
func (a *App) startEngines(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	for _, eng := range deps.Engines {
		g.Go(func() error {
			return eng.Run(ctx)
		})
	}
}

// startFeed connects the websocket feed and closes it on shutdown.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if err := deps.Feed.Connect(ctx); err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	g.Go(func() error {
		<-ctx.Done()
		_ = deps.Feed.Close()
		return ctx.Err()
	})
	return nil
}

// startBookMirror periodically copies each non-stale book to Redis so
// external consumers can read it without touching the engines.
func (a *App) startBookMirror(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.BookCache == nil {
		return
	}
	g.Go(func() error {
		ticker := time.NewTicker(bookMirrorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				for symbol, eng := range deps.Engines {
					if eng.BookStale() {
						continue
					}
					if err := deps.BookCache.StoreSnapshot(ctx, eng.Book()); err != nil {
						a.logger.WarnContext(ctx, "book mirror failed",
							slog.String("market", symbol),
							slog.String("error", err.Error()))
					}
				}
			}
		}
	})
}

// startIndexerAudit periodically compares the local count of resting
// orders against the indexer's view. The indexer lags the chain, so a
// mismatch is logged rather than acted on.
func (a *App) startIndexerAudit(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Indexer == nil || deps.Backend == nil {
		return
	}
	owner := deps.Backend.From().Hex()

	g.Go(func() error {
		ticker := time.NewTicker(indexerAuditInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				remote, err := deps.Indexer.ActiveOrders(ctx, owner, 500, 0)
				if err != nil {
					a.logger.WarnContext(ctx, "indexer audit failed", slog.String("error", err.Error()))
					continue
				}

				local := 0
				for _, eng := range deps.Engines {
					for _, order := range eng.Orders() {
						if order.Resolved() && !order.State.Terminal() {
							local++
						}
					}
				}
				if local != len(remote) {
					a.logger.WarnContext(ctx, "open order count differs from indexer",
						slog.Int("local", local),
						slog.Int("indexer", len(remote)))
				}
			}
		}
	})
}
