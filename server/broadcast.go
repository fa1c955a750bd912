package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/strata/session"
)

// Hub tracks connected WebSocket clients and fans session events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	snapshot func() *CanvasView
	logger   *zap.SugaredLogger
}

func newHub(snapshot func() *CanvasView, log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		snapshot:   snapshot,
		logger:     log,
	}
}

// Run processes registrations until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Debugw("Hub stopping due to context cancellation")
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Infow("Client connected", "client_id", c.id, "clients", n)
			// Sent after registration so no event between the two is lost.
			if h.snapshot != nil {
				c.trySend(Message{Type: MessageCanvas, Canvas: h.snapshot()})
			}
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Infow("Client disconnected", "client_id", c.id, "clients", n)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcastMessage sends a message to all connected clients.
// Returns the number of clients that accepted the message (channel not full).
func (h *Hub) broadcastMessage(msg interface{}) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			// Channel full - skip
		}
	}
	return sent
}

// publish is the session subscriber. It runs with the session lock held, so
// it only enqueues.
func (h *Hub) publish(e session.Event) {
	h.broadcastMessage(Message{Type: MessageEvent, Event: e})
}
