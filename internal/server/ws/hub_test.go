package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// chanBus is an in-memory domain.SignalBus.
type chanBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newChanBus() *chanBus { return &chanBus{subs: map[string][]chan []byte{}} }

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

type countObserver struct{ n atomic.Int64 }

func (o *countObserver) ClientConnected()    { o.n.Add(1) }
func (o *countObserver) ClientDisconnected() { o.n.Add(-1) }

func startHub(t *testing.T, bus domain.SignalBus, cfg Config) (*Hub, string) {
	t.Helper()
	hub := NewHub(bus, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHubSnapshotAndRelay(t *testing.T) {
	bus := newChanBus()
	obs := &countObserver{}
	hub, url := startHub(t, bus, Config{
		Snapshot: func() map[string]any { return map[string]any{"pools": []string{"SOL"}} },
		Observer: obs,
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, "snapshot", env.Type)
	assert.JSONEq(t, `{"pools":["SOL"]}`, string(env.Payload))

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return obs.n.Load() == 1 }, time.Second, 10*time.Millisecond)

	change := []byte(`{"slice":"pools","version":2,"value":{}}`)
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelState, change))

	env = readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelState, env.Type)
	assert.Equal(t, "state:pools", env.Topic)
	assert.JSONEq(t, string(change), string(env.Payload))
}

func TestHubUnsubscribe(t *testing.T) {
	bus := newChanBus()
	hub, url := startHub(t, bus, Config{})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	msg, _ := json.Marshal(subscribeMsg{Action: "unsubscribe", Topics: []string{"state:*"}})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	// The unsubscribe is processed on the read pump; give it a moment before
	// publishing the filtered change.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelState, []byte(`{"slice":"pools"}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelNotifications, []byte(`{"title":"Deposit successful"}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelNotifications, env.Type)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "state:orderbook", topicFor(domain.ChannelState, []byte(`{"slice":"orderbook"}`)))
	assert.Equal(t, "state", topicFor(domain.ChannelState, []byte(`not json`)))
	assert.Equal(t, "actions", topicFor(domain.ChannelActions, []byte(`{"slice":"x"}`)))
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(newChanBus(), Config{AllowedOrigins: []string{"https://app.example"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))
}
