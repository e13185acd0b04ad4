package feed

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
)

type countRefresher struct{ n atomic.Int32 }

func (c *countRefresher) TriggerRefresh() { c.n.Add(1) }

// rpcServer accepts subscriptions, records them and sends one notification
// per connection.
type rpcServer struct {
	mu       sync.Mutex
	requests []rpcRequest
	conns    atomic.Int32
}

func (s *rpcServer) handle() http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.conns.Add(1)
		for i := 0; i < 2; i++ {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			s.mu.Lock()
			s.requests = append(s.requests, req)
			s.mu.Unlock()
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 100 + req.ID})
		}
		_ = conn.WriteJSON(map[string]any{
			"jsonrpc": "2.0",
			"method":  "accountNotification",
			"params":  map[string]any{"subscription": 101, "result": map[string]any{}},
		})
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (s *rpcServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Method)
	}
	return out
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAccountFeedSubscribesAndTriggers(t *testing.T) {
	srv := &rpcServer{}
	ts := httptest.NewServer(srv.handle())
	defer ts.Close()

	refresher := &countRefresher{}
	f := NewAccountFeed("ws"+strings.TrimPrefix(ts.URL, "http"), refresher, discard())
	f.SetWallet("8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return refresher.n.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"accountSubscribe", "logsSubscribe"}, srv.methods()[:2])

	srv.mu.Lock()
	first := srv.requests[0]
	srv.mu.Unlock()
	raw, err := json.Marshal(first.Params[0])
	require.NoError(t, err)
	assert.Equal(t, `"8szGkuLTAux9XMgZ2vtY39jVSowEcpBfFfD8hXSEqdGC"`, string(raw))

	// A new wallet resubscribes on a fresh connection.
	f.SetWallet("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	require.Eventually(t, func() bool { return srv.conns.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}

func TestAccountFeedIdleWithoutWallet(t *testing.T) {
	f := NewAccountFeed("ws://127.0.0.1:1", &countRefresher{}, discard())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, f.Run(ctx))
}

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"https://api.devnet.solana.com":       "wss://api.devnet.solana.com",
		"http://127.0.0.1:8899":               "ws://127.0.0.1:8900",
		"https://rpc.example.com/v1/key?x=1":  "wss://rpc.example.com/v1/key?x=1",
		"wss://stream.example.com:443/socket": "wss://stream.example.com:443/socket",
	}
	for in, want := range cases {
		got, err := WebsocketURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := WebsocketURL("ftp://host")
	require.Error(t, err)
	_, err = WebsocketURL("not a url")
	require.Error(t, err)
}
