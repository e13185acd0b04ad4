package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

func TestNamespacedKeys(t *testing.T) {
	c := &Client{prefix: defaultPrefix}
	assert.Equal(t, "marginterm:price:SOL", c.Key("price", "SOL"))
	assert.Equal(t, "marginterm:book:SOL/USDC:bbo", NewOrderbookCache(c).bboKey("SOL/USDC"))
	assert.Equal(t, "marginterm:prefs", c.Key("prefs"))
	assert.Equal(t, "app:lock", namespaced("app:", "lock"))
}

func TestParsePrice(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	price, got, err := parsePrice(map[string]string{"price": "151.25", "ts": "1767323045000000000"})
	require.NoError(t, err)
	assert.InDelta(t, 151.25, price, 1e-9)
	assert.True(t, ts.Equal(got))

	_, _, err = parsePrice(map[string]string{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = parsePrice(map[string]string{"price": "x", "ts": "1"})
	assert.Error(t, err)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("state*"))
	assert.False(t, hasPattern(domain.ChannelActions))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "WITHSCORES")
}

func TestOfferEvictsOldest(t *testing.T) {
	out := make(chan []byte, 2)
	assert.False(t, offer(out, []byte("a")))
	assert.False(t, offer(out, []byte("b")))
	assert.True(t, offer(out, []byte("c")))

	assert.Equal(t, "b", string(<-out))
	assert.Equal(t, "c", string(<-out))
}

func TestDecide(t *testing.T) {
	window := time.Minute
	now := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC).UnixMicro()

	d := decide(true, 3, now, now, 10, window)
	assert.Equal(t, domain.RateDecision{Allowed: true, Remaining: 7}, d)

	// The oldest request leaves the window 15s from now.
	oldest := now - (45 * time.Second).Microseconds()
	d = decide(false, 10, oldest, now, 10, window)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, 15*time.Second, d.RetryAfter)

	// Never advertise less than a second.
	d = decide(false, 10, now-window.Microseconds(), now, 10, window)
	assert.Equal(t, time.Second, d.RetryAfter)
}
