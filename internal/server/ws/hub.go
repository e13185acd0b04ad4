package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// busChannels are the signal-bus channels the hub relays.
var busChannels = []string{
	domain.ChannelState,
	domain.ChannelNotifications,
	domain.ChannelActions,
}

// defaultTopics are subscribed for every new client. State changes are
// routed as "state:<slice>" so clients can narrow them down.
var defaultTopics = []string{
	domain.ChannelState + ":*",
	domain.ChannelNotifications,
	domain.ChannelActions,
}

// Envelope is the JSON text frame sent to clients.
type Envelope struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Observer is notified as clients come and go.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
}

// Config controls the hub.
type Config struct {
	// AllowedOrigins restricts the Origin header of upgrade requests. Empty
	// allows all.
	AllowedOrigins []string
	// Snapshot returns the full state sent to a client on connect.
	Snapshot func() map[string]any
	Observer Observer
}

// client represents a single websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change its topics.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

// broadcastMsg carries a frame along with its topic so the hub can route it
// only to subscribed clients.
type broadcastMsg struct {
	topic string
	data  []byte
}

// Hub manages connected websocket clients and relays messages from the
// signal bus to every subscribed client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub that bridges bus to websocket clients.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) || strings.EqualFold(o, u.Host) {
			return true
		}
	}
	return false
}

// Run starts the hub's event loop and the bus subscriptions. It returns when
// ctx is cancelled, closing every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for _, ch := range busChannels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.Error("ws: failed to subscribe to channel",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
			continue
		}
		go h.relay(ctx, ch, msgs)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
				h.disconnected()
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			if h.cfg.Observer != nil {
				h.cfg.Observer.ClientConnected()
			}
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.disconnected()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.topic) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client", slog.String("topic", msg.topic))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) disconnected() {
	if h.cfg.Observer != nil {
		h.cfg.Observer.ClientDisconnected()
	}
}

// relay wraps bus payloads into envelopes and hands them to the event loop.
func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: channel subscription closed", slog.String("channel", channel))
				return
			}
			topic := topicFor(channel, data)
			frame, err := json.Marshal(Envelope{Type: channel, Topic: topic, Payload: data})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{topic: topic, data: frame}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// topicFor derives the routing topic. State changes carry their slice name.
func topicFor(channel string, data []byte) string {
	if channel != domain.ChannelState {
		return channel
	}
	var head struct {
		Slice string `json:"slice"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Slice == "" {
		return channel
	}
	return channel + ":" + head.Slice
}

// HandleWS upgrades an HTTP request to a websocket connection, sends the
// current state snapshot and registers the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, t := range defaultTopics {
		c.subs[t] = true
	}

	c.sendSnapshot()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendSnapshot queues the full state so a new client can render before the
// first change arrives.
func (c *client) sendSnapshot() {
	if c.hub.cfg.Snapshot == nil {
		return
	}
	payload, err := json.Marshal(c.hub.cfg.Snapshot())
	if err != nil {
		c.hub.logger.Error("ws: marshal snapshot", slog.String("error", err.Error()))
		return
	}
	frame, err := json.Marshal(Envelope{Type: "snapshot", Payload: payload})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// readPump reads subscription changes from the connection until it closes.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.subs[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.subs, t)
		}
	}
}

// isSubscribed matches topic directly or against a trailing-* pattern.
func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[topic] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// writePump sends queued frames as text messages and keeps the connection
// alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
