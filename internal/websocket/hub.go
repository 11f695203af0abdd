package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"crm-api/internal/event"
)

// Hub pushes bus events to connected clients of the same tenant.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Event bus to listen for events
	bus event.Bus

	origins []string
	active  atomic.Int64
	done    chan struct{}
}

func NewHub(bus event.Bus, allowedOrigins []string) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		bus:        bus,
		origins:    allowedOrigins,
		done:       make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	// Subscribe to event bus
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			slog.Info("websocket hub stopped")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.active.Add(1)
			slog.Debug("websocket client connected", "tenant_id", client.tenantID, "user_id", client.userID)
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(e)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.active.Load())
}

func (h *Hub) broadcast(e event.Event) {
	message, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	for client := range h.clients {
		if client.tenantID != e.TenantID {
			continue
		}
		select {
		case client.send <- message:
		default:
			slog.Warn("websocket client too slow; disconnecting", "tenant_id", client.tenantID, "user_id", client.userID)
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.active.Add(-1)
}

func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
