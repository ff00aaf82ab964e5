package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reminex/client/internal/events"
	"github.com/reminex/client/internal/infra"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the server binds to loopback by default
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// WebSocket event types.
const (
	MsgSessionExpired = "session_expired"
	MsgRatesRefreshed = "rates_refreshed"
	MsgDraftUpdated   = "draft_updated"
	MsgPong           = "pong"
	MsgHello          = "hello"
)

// handleWebSocket upgrades HTTP connections to WebSocket. Clients receive
// every client event; they may send {"type":"ping"}.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &WSClient{
		hub:  s.wsHub,
		send: make(chan WSMessage, 256),
	}
	client.send <- WSMessage{Type: MsgHello, Data: map[string]string{"currency": s.svc.Session.Currency()}}
	if !s.wsHub.Register(client) {
		conn.Close()
		return
	}

	go wsWritePump(conn, client)
	go wsReadPump(conn, client, s.logger)
}

// wsReadPump reads client messages until the connection fails.
func wsReadPump(conn *websocket.Conn, client *WSClient, logger *zap.Logger) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read", zap.Error(err))
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			client.trySend(WSMessage{Type: MsgPong})
		}
	}
}

// wsWritePump pumps messages from the hub to the WebSocket connection.
func wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	logger *zap.Logger

	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{}
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu     sync.Mutex
	closed bool
}

// trySend queues msg unless the client is gone or its buffer is full.
func (c *WSClient) trySend(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *zap.Logger) *WSHub {
	return &WSHub{
		logger:     infra.OrNop(logger),
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
}

// Run runs the hub event loop until ctx is cancelled, then disconnects
// every client.
func (h *WSHub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			client.close()
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(msg) {
					// Slow client; disconnect
					h.logger.Debug("dropping slow websocket client")
					delete(h.clients, client)
					client.close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients. It never
// blocks; messages are dropped when the queue is full.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *WSHub) Register(client *WSClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ============================================================
// Event relay
// ============================================================

// relay forwards client events from the bus to the hub. Bus handlers run
// synchronously under the bus lock, so they only enqueue.
type relay struct {
	bus *events.Bus
	hub *WSHub
}

func newRelay(bus *events.Bus, hub *WSHub) (*relay, error) {
	r := &relay{bus: bus, hub: hub}
	if err := bus.Subscribe(events.TopicSessionExpired, r.onSessionExpired); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.TopicRatesRefreshed, r.onRatesRefreshed); err != nil {
		return nil, err
	}
	if err := bus.Subscribe(events.TopicDraftUpdated, r.onDraftUpdated); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *relay) onSessionExpired(e events.SessionExpired) {
	r.hub.Broadcast(WSMessage{Type: MsgSessionExpired, Data: e})
}

func (r *relay) onRatesRefreshed(e events.RatesRefreshed) {
	r.hub.Broadcast(WSMessage{Type: MsgRatesRefreshed, Data: e})
}

func (r *relay) onDraftUpdated(e events.DraftUpdated) {
	r.hub.Broadcast(WSMessage{Type: MsgDraftUpdated, Data: e})
}

func (r *relay) close() {
	_ = r.bus.Unsubscribe(events.TopicSessionExpired, r.onSessionExpired)
	_ = r.bus.Unsubscribe(events.TopicRatesRefreshed, r.onRatesRefreshed)
	_ = r.bus.Unsubscribe(events.TopicDraftUpdated, r.onDraftUpdated)
}
