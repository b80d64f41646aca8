package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/curvelab/monbot/internal/domain"
)

// BookCache mirrors book snapshots into Redis for observers outside the
// process (dashboards, monitor mode). The engine's in-memory book stays
// authoritative; the mirror is refreshed wholesale per snapshot.
//
// Key schema, prices and sizes in integer units:
//
//	book:{market}:bids - sorted set of bid prices (score = price)
//	book:{market}:asks - sorted set of ask prices (score = price)
//	book:{market}:bid:size - hash mapping price -> size
//	book:{market}:ask:size - hash mapping price -> size
//	book:{market}:meta - hash with "block" (freshness marker)
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

var _ domain.BookCache = (*BookCache)(nil)

func bookBidsKey(market string) string    { return "book:" + market + ":bids" }
func bookAsksKey(market string) string    { return "book:" + market + ":asks" }
func bookBidSizeKey(market string) string { return "book:" + market + ":bid:size" }
func bookAskSizeKey(market string) string { return "book:" + market + ":ask:size" }
func bookMetaKey(market string) string    { return "book:" + market + ":meta" }

// StoreSnapshot atomically replaces the mirrored book for a market.
func (bc *BookCache) StoreSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	bidsKey := bookBidsKey(snap.Market)
	asksKey := bookAsksKey(snap.Market)
	bidSizeKey := bookBidSizeKey(snap.Market)
	askSizeKey := bookAskSizeKey(snap.Market)
	metaKey := bookMetaKey(snap.Market)

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidSizeKey, askSizeKey, metaKey)

	for _, lvl := range snap.Bids {
		price := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: float64(lvl.Price), Member: price})
		pipe.HSet(ctx, bidSizeKey, price, strconv.FormatInt(lvl.Size, 10))
	}
	for _, lvl := range snap.Asks {
		price := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: float64(lvl.Price), Member: price})
		pipe.HSet(ctx, askSizeKey, price, strconv.FormatInt(lvl.Size, 10))
	}
	pipe.HSet(ctx, metaKey, "block", strconv.FormatUint(snap.Block, 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: store book snapshot %s: %w", snap.Market, err)
	}
	return nil
}

// LoadSnapshot reconstructs a mirrored snapshot. It returns
// domain.ErrNotFound when the market has never been stored.
func (bc *BookCache) LoadSnapshot(ctx context.Context, market string) (domain.BookSnapshot, error) {
	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bookBidsKey(market), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, bookAsksKey(market), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bookBidSizeKey(market))
	askSizeCmd := pipe.HGetAll(ctx, bookAskSizeKey(market))
	metaCmd := pipe.HGetAll(ctx, bookMetaKey(market))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: load book snapshot %s: %w", market, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.BookSnapshot{Market: market}
	if blockStr, ok := meta["block"]; ok {
		snap.Block, _ = strconv.ParseUint(blockStr, 10, 64)
	}

	bidSizes, _ := bidSizeCmd.Result()
	askSizes, _ := askSizeCmd.Result()
	snap.Bids = levelsFromZ(bidsCmd, bidSizes)
	snap.Asks = levelsFromZ(asksCmd, askSizes)
	return snap, nil
}

func levelsFromZ(cmd *redis.ZSliceCmd, sizes map[string]string) []domain.PriceLevel {
	zs, _ := cmd.Result()
	out := make([]domain.PriceLevel, 0, len(zs))
	for _, z := range zs {
		priceStr, ok := z.Member.(string)
		if !ok {
			continue
		}
		price, err := strconv.ParseInt(priceStr, 10, 64)
		if err != nil {
			continue
		}
		var size int64
		if sizeStr, exists := sizes[priceStr]; exists {
			size, _ = strconv.ParseInt(sizeStr, 10, 64)
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}
