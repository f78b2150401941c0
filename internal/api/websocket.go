package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-influx/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-influx/internal/settings"
	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// Message types on the admin WebSocket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Channels a client can subscribe to. Subscribing delivers the current
// state first, then every change.
const (
	// ChannelStatus carries bridge health transitions.
	ChannelStatus = "status.changed"
	// ChannelConfig carries a summary of each new configuration snapshot.
	ChannelConfig = "config.changed"
)

const (
	wsSendBuffer     = 64
	wsMaxMessageSize = 8192
	wsPingInterval   = 30 * time.Second
	wsPongWait       = 10 * time.Second
)

// WSRequest is a message from a client.
type WSRequest struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// WSFrame is a message to a client.
type WSFrame struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ConfigEvent summarises a configuration snapshot on ChannelConfig.
type ConfigEvent struct {
	Generation   uint64   `json:"generation"`
	Rules        int      `json:"rules"`
	RulesVersion string   `json:"rules_version"`
	Imports      []string `json:"imports"`
}

func configEvent(snap *settings.Snapshot) ConfigEvent {
	return ConfigEvent{
		Generation:   snap.Generation,
		Rules:        snap.Rules.Len(),
		RulesVersion: snap.Rules.Version(),
		Imports:      snap.ImportDeviceIDs(),
	}
}

func encodeFrame(f WSFrame) ([]byte, error) {
	f.Timestamp = time.Now().UTC()
	return json.Marshal(f)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The single-use ticket authenticates the connection.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*wsClient]struct{})}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// remove drops c. Only the caller that finds c in the map closes its send
// channel, so Run and the read loop cannot both close it.
func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// Publish sends payload to every client subscribed to channel. It never
// blocks: a client with a full buffer misses the event.
func (h *Hub) Publish(channel string, payload any) {
	data, err := encodeFrame(WSFrame{Type: WSTypeEvent, Channel: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastStatus runs under the status calculator's lock; Publish does
// not block.
func (s *Server) broadcastStatus(state status.State) {
	s.hub.Publish(ChannelStatus, state)
}

func (s *Server) broadcastConfig(snap *settings.Snapshot) {
	s.hub.Publish(ChannelConfig, configEvent(snap))
}

// currentState returns what a new subscriber to channel sees first.
func (s *Server) currentState(channel string) (any, bool) {
	switch channel {
	case ChannelStatus:
		return s.status.State(), true
	case ChannelConfig:
		return configEvent(s.settings.Current()), true
	default:
		return nil, false
	}
}

// handleWebSocket upgrades a connection authenticated by a ticket from
// POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket, time.Now())
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		channels: make(map[string]struct{}),
		subject:  entry.subject,
		role:     entry.role,
		current:  s.currentState,
	}
	s.hub.add(c)

	go c.writeLoop()
	go c.readLoop()
}
