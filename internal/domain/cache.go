package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest pool prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// OrderbookCache stores the latest polled orderbook per market.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, market string, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, market string) (OrderbookSnapshot, error)
	GetBBO(ctx context.Context, market string) (bestBid, bestAsk float64, err error)
}

// PreferenceStore persists user preferences under fixed string keys.
type PreferenceStore interface {
	Load(ctx context.Context, wallet string) (map[string]string, error)
	Save(ctx context.Context, wallet string, values map[string]string) error
}

// RateDecision is the verdict for one request against a rate window.
// RetryAfter is set only when the request was refused.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateDecision, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub between the pipeline and the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Bus channels.
const (
	ChannelState         = "state"
	ChannelNotifications = "notifications"
	ChannelActions       = "actions"
)
