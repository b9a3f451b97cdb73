package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains active WebSocket connections and fans out channel updates
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed once Run returns
	done chan struct{}

	mu  sync.RWMutex
	log *zap.SugaredLogger
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run handles client registration until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debugw("ws_client_connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debugw("ws_client_disconnected", "client", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToChannel sends a message to all clients subscribed to a channel
func (h *Hub) BroadcastToChannel(channel string, data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		h.log.Warnw("ws_marshal_failed", "channel", channel, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribed(channel) {
			select {
			case client.send <- message:
			default:
				// Buffer full, skip this client
			}
		}
	}
}

// subscribers counts clients subscribed to channel
func (h *Hub) subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.IsSubscribed(channel) {
			n++
		}
	}
	return n
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	// Subscribed channels
	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

// Subscribe adds a channel subscription
func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
	c.hub.log.Debugw("ws_subscribed", "client", c.id, "channel", channel)
}

// Unsubscribe removes a channel subscription
func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
	c.hub.log.Debugw("ws_unsubscribed", "client", c.id, "channel", channel)
}

// readPump reads subscription requests from the connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debugw("ws_read_failed", "client", c.id, "err", err)
			}
			break
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.log.Debugw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		switch req.Op {
		case "subscribe":
			for _, channel := range req.Channels {
				c.Subscribe(channel)
			}
		case "unsubscribe":
			for _, channel := range req.Channels {
				c.Unsubscribe(channel)
			}
		default:
			c.hub.log.Debugw("ws_unknown_op", "client", c.id, "op", req.Op)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            conn.RemoteAddr().String(),
		subscriptions: make(map[string]bool),
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
