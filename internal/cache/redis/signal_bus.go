package redis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// subscriberBuffer is the number of payloads queued per subscription.
const subscriberBuffer = 128

// SignalBus implements domain.SignalBus on Redis Pub/Sub. State changes,
// action outcomes and toasts reach every websocket hub attached to the same
// Redis through it.
//
// A subscriber that falls behind loses the oldest queued payload rather than
// stalling the connection. State payloads are full snapshots, so the newest
// one supersedes whatever was dropped.
type SignalBus struct {
	c       *Client
	dropped atomic.Int64
}

// NewSignalBus creates a SignalBus.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

// Publish sends payload on the namespaced channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.rdb.Publish(ctx, sb.c.Key("bus", channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams payloads published on channel, which may be a glob
// pattern. The stream closes when ctx is cancelled.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := sb.c.Key("bus", channel)
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.c.rdb.PSubscribe(ctx, name)
	} else {
		pubsub = sb.c.rdb.Subscribe(ctx, name)
	}
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				if offer(out, []byte(msg.Payload)) {
					sb.dropped.Add(1)
				}
			}
		}
	}()
	return out, nil
}

// Dropped is the number of payloads discarded for slow subscribers.
func (sb *SignalBus) Dropped() int64 { return sb.dropped.Load() }

// offer queues msg without blocking, evicting the oldest queued payload when
// the buffer is full. It reports whether a payload was dropped. out has a
// single sender.
func offer(out chan []byte, msg []byte) bool {
	select {
	case out <- msg:
		return false
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- msg:
	default:
	}
	return true
}

// hasPattern reports whether channel needs PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

var _ domain.SignalBus = (*SignalBus)(nil)
