// Package ws bridges the scanner's Redis channels to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/domain"
	"github.com/chitown2016/hyperliquid-kraken-arbitrage/internal/server/middleware"
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

	// replayLimit caps the stream entries replayed to a reconnecting client.
	replayLimit = 200
)

// Envelope is the frame sent to clients. Type is the last segment of the
// source channel, e.g. "opportunities" for "arbscan:opportunities".
type Envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	// ID is the stream entry ID of a replayed frame. Pass the last one seen
	// as ?since= when reconnecting.
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed channels
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
type subscribeMsg struct {
	Action   string   `json:"action"`   // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // channel names
}

// Config describes which channels the hub relays and who may connect.
type Config struct {
	Mode           string
	Channels       []string
	AllowedOrigins []string
	StartedAt      time.Time
	// ReplayStream is read for clients connecting with ?since=<entry id>.
	// Empty disables replay.
	ReplayStream string
}

// Hub manages a set of connected WebSocket clients and broadcasts messages
// from the signal bus to every client subscribed to the source channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.SignalBus
	upgrader   websocket.Upgrader
	channels   []string
	replay     string
	mode       string
	startedAt  time.Time
	mu         sync.RWMutex
	logger     *slog.Logger
}

// broadcastMsg carries a message along with its source channel so the hub
// can route it only to clients subscribed to that channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// NewHub creates a hub relaying cfg.Channels from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		channels:   cfg.Channels,
		replay:     cfg.ReplayStream,
		mode:       mode,
		startedAt:  startedAt,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(cfg.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	return h
}

func originAllowed(allowed []string, origin string) bool {
	// Non-browser clients send no Origin.
	return origin == "" || middleware.OriginAllowed(allowed, origin)
}

// Run starts the hub's main event loop and the channel subscriptions. It
// returns when ctx is cancelled, after closing every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range h.channels {
		go h.subscribeToChannel(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.ClientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.ClientCount()))

		case msg := <-h.broadcast:
			frame, err := json.Marshal(envelope(msg.channel, msg.data))
			if err != nil {
				h.logger.Warn("dropping malformed message",
					slog.String("channel", msg.channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(msg.channel) {
					continue
				}
				select {
				case c.send <- frame:
				default:
					// Client's send buffer is full; drop the message.
					h.logger.Warn("dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// envelope wraps a channel payload. Payloads that are not JSON are sent as a
// JSON string.
func envelope(channel string, data []byte) Envelope {
	payload := json.RawMessage(data)
	if !json.Valid(data) {
		payload, _ = json.Marshal(string(data))
	}
	typ := channel
	if i := strings.LastIndexByte(channel, ':'); i >= 0 {
		typ = channel[i+1:]
	}
	return Envelope{Type: typ, Channel: channel, Payload: payload}
}

// subscribeToChannel subscribes to a single pub/sub channel and forwards
// received messages to the hub's broadcast channel.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("channel subscription closed", slog.String("channel", channel))
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. New clients are subscribed to every channel.
// GET /ws?since=<stream entry id>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range h.channels {
		c.subs[ch] = true
	}

	// Queued before registering so the hub cannot close send underneath.
	c.sendHello()
	if since := r.URL.Query().Get("since"); since != "" && h.replay != "" {
		c.sendReplay(r.Context(), since)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription changes from the connection until it fails.
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
				c.hub.logger.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendHello pushes a status frame so clients can mark the connection healthy
// before the first cycle completes.
func (c *client) sendHello() {
	uptime := max(0, int64(time.Since(c.hub.startedAt).Seconds()))

	payload, err := json.Marshal(map[string]any{
		"mode":           c.hub.mode,
		"channels":       c.hub.channels,
		"uptime_seconds": uptime,
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(Envelope{Type: "hello", Payload: payload})
	if err != nil {
		return
	}

	select {
	case c.send <- frame:
	default:
	}
}

// sendReplay queues the replay stream entries after since.
func (c *client) sendReplay(ctx context.Context, since string) {
	msgs, err := c.hub.bus.StreamRead(ctx, c.hub.replay, since, replayLimit)
	if err != nil {
		c.hub.logger.Warn("replay failed",
			slog.String("since", since),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		env := envelope(c.hub.replay, m.Payload)
		env.ID = m.ID
		frame, err := json.Marshal(env)
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			return
		}
	}
}

// isSubscribed checks whether the client is subscribed to the given channel.
// A trailing "*" subscribes to every channel with that prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// writePump sends queued frames as JSON text messages and pings on an
// interval.
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
				// The hub closed the channel.
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
