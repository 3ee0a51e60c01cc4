package api

import (
	"context"
	"log/slog"

	"skyroute/internal/models"

	"github.com/goccy/go-json"
)

// client is one connected SSE subscriber
type client struct {
	id   string
	send chan []byte
}

// Hub fans alerts out to every connected event stream. Slow subscribers whose buffer
// is full are dropped.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			slog.Debug("SSE client registered", "client", c.id, "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				slog.Debug("SSE client unregistered", "client", c.id)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slog.Warn("SSE client buffer full, dropping", "client", c.id)
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish sends an alert event to all subscribers. It is a no-op once the hub has stopped.
func (h *Hub) Publish(alert models.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		slog.Error("Failed to encode alert event", "key", alert.Key, "error", err)
		return
	}
	msg := []byte("event: alert\ndata: " + string(data) + "\n\n")

	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) subscribe(id string) (*client, bool) {
	c := &client{id: id, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
		return c, true
	case <-h.done:
		return nil, false
	}
}

func (h *Hub) unsubscribe(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
