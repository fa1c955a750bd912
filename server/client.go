package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/strata/logger"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per client before broadcasts are dropped
	sendBuffer = 64
)

// Message types sent to WebSocket clients.
const (
	MessageCanvas = "canvas"
	MessageEvent  = "event"
	MessageError  = "error"
)

// Message is the envelope of every frame sent to a client.
type Message struct {
	Type   string      `json:"type"`
	Canvas *CanvasView `json:"canvas,omitempty"`
	Event  interface{} `json:"event,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// inboundMessage is what clients send. Only "sync" is understood: it asks
// for the full active canvas.
type inboundMessage struct {
	Type string `json:"type"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan interface{}
	id   string
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.hub.logger.Debugw("Read pump started", logger.FieldClientID, c.id)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Warnw("JSON unmarshal error",
				logger.FieldError, err.Error(),
				logger.FieldClientID, c.id,
			)
			c.trySend(Message{Type: MessageError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "sync":
			c.trySend(Message{Type: MessageCanvas, Canvas: c.hub.snapshot()})
		default:
			c.trySend(Message{Type: MessageError, Error: "unknown message type " + msg.Type})
		}
	}
}

// handleReadError logs unexpected WebSocket read errors.
// Expected closure codes (going away, abnormal, no status) are silently ignored.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.hub.logger.Warnw("WebSocket read error",
			logger.FieldClientID, c.id,
			logger.FieldError, err,
		)
	}
}

// trySend queues msg unless the client is saturated or already unregistered.
func (c *Client) trySend(msg interface{}) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump writes queued messages and keepalive pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.hub.logger.Debugw("Write pump started", logger.FieldClientID, c.id)

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Warnw("WebSocket write error",
					logger.FieldClientID, c.id,
					logger.FieldError, err,
				)
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
