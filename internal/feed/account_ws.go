// Package feed pushes chain activity into the polling pipeline. Polling stays
// the source of truth; a notification only pulls the next cycle forward.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// errWalletChanged ends a connection so the feed resubscribes immediately.
var errWalletChanged = errors.New("feed: wallet changed")

// Refresher asks every poller for an immediate cycle.
type Refresher interface {
	TriggerRefresh()
}

// rpcRequest is a Solana JSON-RPC subscription request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcMessage covers both subscription acks and notifications.
type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AccountFeed subscribes to the connected wallet's account and to logs that
// mention it over the cluster's websocket endpoint, and triggers a refresh on
// every notification. It reconnects with backoff on disconnect and
// resubscribes when the wallet changes.
type AccountFeed struct {
	wsURL     string
	refresher Refresher
	logger    *slog.Logger

	mu      sync.Mutex
	wallet  string
	changed chan struct{}
}

// NewAccountFeed creates a feed for wsURL.
func NewAccountFeed(wsURL string, refresher Refresher, logger *slog.Logger) *AccountFeed {
	return &AccountFeed{
		wsURL:     wsURL,
		refresher: refresher,
		logger:    logger.With(slog.String("component", "account_feed")),
		changed:   make(chan struct{}, 1),
	}
}

// SetWallet switches the watched wallet. An empty wallet pauses the feed.
func (f *AccountFeed) SetWallet(wallet string) {
	f.mu.Lock()
	same := f.wallet == wallet
	f.wallet = wallet
	f.mu.Unlock()
	if same {
		return
	}
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

func (f *AccountFeed) currentWallet() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallet
}

// Run connects and subscribes until ctx is cancelled. Reconnects with
// exponential backoff on disconnect.
func (f *AccountFeed) Run(ctx context.Context) error {
	delay := reconnectDelay
	for {
		wallet := f.currentWallet()
		if wallet == "" {
			select {
			case <-ctx.Done():
				return nil
			case <-f.changed:
				continue
			}
		}

		err := f.runConnection(ctx, wallet, func() { delay = reconnectDelay })
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errWalletChanged) {
			continue
		}
		f.logger.Warn("account feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-f.changed:
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// runConnection dials, subscribes for wallet and forwards notifications
// until the connection fails, the wallet changes or ctx is done. connected
// runs once both subscriptions are sent.
func (f *AccountFeed) runConnection(ctx context.Context, wallet string, connected func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	subs := []rpcRequest{
		{JSONRPC: "2.0", ID: 1, Method: "accountSubscribe", Params: []any{
			wallet, map[string]string{"encoding": "base64", "commitment": "confirmed"},
		}},
		{JSONRPC: "2.0", ID: 2, Method: "logsSubscribe", Params: []any{
			map[string][]string{"mentions": {wallet}}, map[string]string{"commitment": "confirmed"},
		}},
	}
	for _, req := range subs {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("feed: %s: %w", req.Method, err)
		}
	}
	connected()
	f.logger.Info("account feed subscribed", slog.String("wallet", wallet))

	notes := make(chan struct{}, 1)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			var msg rpcMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				f.logger.Debug("account feed: unparseable message", slog.String("error", err.Error()))
				continue
			}
			if msg.Error != nil {
				readErr <- fmt.Errorf("feed: rpc error %d: %s", msg.Error.Code, msg.Error.Message)
				return
			}
			if msg.Method == "" {
				continue // subscription ack
			}
			select {
			case notes <- struct{}{}:
			default:
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case <-f.changed:
			return errWalletChanged
		case err := <-readErr:
			return fmt.Errorf("feed: read: %w", err)
		case <-notes:
			f.refresher.TriggerRefresh()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("feed: ping: %w", err)
			}
		}
	}
}

// WebsocketURL derives the subscription endpoint from an HTTP RPC URL. The
// scheme becomes ws or wss and an explicit port is incremented by one, which
// is where solana-test-validator serves websockets. ws and wss URLs are
// returned unchanged.
func WebsocketURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("feed: invalid rpc url %q", rpcURL)
	}
	switch u.Scheme {
	case "ws", "wss":
		return u.String(), nil
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("feed: unsupported rpc scheme %q", u.Scheme)
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("feed: invalid rpc port %q", port)
		}
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(n+1))
	}
	return u.String(), nil
}
