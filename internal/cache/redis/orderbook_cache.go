package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache. The latest polled snapshot
// of each market is kept so a restarted terminal can render the book before
// the first poll returns.
//
// Key schema:
//
//	{prefix}book:{market}:snap  - JSON encoded OrderbookSnapshot
//	{prefix}book:{market}:bbo   - hash with fields "bid" and "ask"
type OrderbookCache struct {
	c *Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{c: c}
}

func (oc *OrderbookCache) snapKey(market string) string { return oc.c.Key("book", market, "snap") }
func (oc *OrderbookCache) bboKey(market string) string  { return oc.c.Key("book", market, "bbo") }

// SetSnapshot atomically replaces the snapshot and best bid/offer of market.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, market string, snap domain.OrderbookSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode orderbook %s: %w", market, err)
	}

	pipe := oc.c.rdb.TxPipeline()
	pipe.Set(ctx, oc.snapKey(market), raw, 0)
	pipe.Del(ctx, oc.bboKey(market))
	if bid := snap.BestBid(); bid > 0 {
		pipe.HSet(ctx, oc.bboKey(market), "bid", strconv.FormatFloat(bid, 'f', -1, 64))
	}
	if ask := snap.BestAsk(); ask > 0 {
		pipe.HSet(ctx, oc.bboKey(market), "ask", strconv.FormatFloat(ask, 'f', -1, 64))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", market, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot of market, or domain.ErrNotFound.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	raw, err := oc.c.rdb.Get(ctx, oc.snapKey(market)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", market, err)
	}
	var snap domain.OrderbookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: decode orderbook %s: %w", market, err)
	}
	return snap, nil
}

// GetBBO retrieves the current best bid and best ask of market.
// It returns domain.ErrNotFound if no BBO data exists.
func (oc *OrderbookCache) GetBBO(ctx context.Context, market string) (bestBid, bestAsk float64, err error) {
	vals, err := oc.c.rdb.HGetAll(ctx, oc.bboKey(market)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", market, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}
	if s, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(s, 64)
	}
	if s, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(s, 64)
	}
	return bestBid, bestAsk, nil
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
