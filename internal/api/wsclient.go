package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-influx/internal/auth"
)

// wsClient is one admin WebSocket connection.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string
	role    auth.Role
	current func(channel string) (any, bool)

	mu       sync.RWMutex
	channels map[string]struct{}
}

func (c *wsClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongWait)) }
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Application messages count as liveness too; some browsers never
		// answer protocol pings.
		extend() //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *wsClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck // write error checked below
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck // write error checked below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(WSFrame{Type: WSTypeError, Payload: errorPayload("invalid JSON message")})
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.mu.Lock()
		for _, ch := range req.Channels {
			delete(c.channels, ch)
		}
		c.mu.Unlock()
		c.reply(WSFrame{Type: WSTypeResponse, ID: req.ID, Payload: map[string]any{"unsubscribed": req.Channels}})
	case WSTypePing:
		c.reply(WSFrame{Type: WSTypePong, ID: req.ID})
	default:
		c.reply(WSFrame{Type: WSTypeError, ID: req.ID, Payload: errorPayload("unknown message type: " + req.Type)})
	}
}

// subscribe accepts only known channels and then sends the current state
// of each, so a client never has to poll after connecting.
func (c *wsClient) subscribe(req WSRequest) {
	if len(req.Channels) == 0 {
		c.reply(WSFrame{Type: WSTypeError, ID: req.ID, Payload: errorPayload("channels is required")})
		return
	}
	initial := make([]WSFrame, 0, len(req.Channels))
	for _, ch := range req.Channels {
		state, ok := c.current(ch)
		if !ok {
			c.reply(WSFrame{Type: WSTypeError, ID: req.ID, Payload: errorPayload("unknown channel: " + ch)})
			return
		}
		initial = append(initial, WSFrame{Type: WSTypeEvent, Channel: ch, Payload: state})
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		c.channels[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "channels", req.Channels, "subject", c.subject, "role", c.role)
	c.reply(WSFrame{Type: WSTypeResponse, ID: req.ID, Payload: map[string]any{"subscribed": req.Channels}})
	for _, f := range initial {
		c.reply(f)
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsClient) reply(f WSFrame) {
	data, err := encodeFrame(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue drops data when the buffer is full or the client has already
// been removed.
func (c *wsClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Hub.remove
	}()
	select {
	case c.send <- data:
	default:
	}
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
