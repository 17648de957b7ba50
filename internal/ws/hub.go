// Package ws carries the renderer bridge messages over WebSocket
// connections and fans server messages out to every connected renderer.
package ws

import (
	"log/slog"
	"sync"

	"github.com/serroba/sketchbook/internal/logging"
)

// Hub tracks connected renderers and broadcasts to them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub creates a new Hub. A nil logger is silent.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logging.OrNop(logger),
		clients: make(map[string]*Client),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client.ID)
}

// Broadcast sends msg to every client except excludeClientID.
func (h *Hub) Broadcast(msg Message, excludeClientID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, client := range h.clients {
		if id == excludeClientID {
			continue
		}

		// Send in goroutine to avoid blocking on slow clients
		go func(c *Client) {
			if err := c.Send(msg); err != nil {
				h.logger.Debug("broadcast send failed", "client", c.ID, "type", msg.Type, "error", err)
			}
		}(client)
	}
}

// TotalClients returns the number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
