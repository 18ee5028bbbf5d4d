package ws

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Hub keeps track of the connected clients so they can be dropped on
// shutdown.
type Hub struct {
	clients     map[*Client]bool
	registerc   chan *Client
	unregisterc chan *Client
	stopped     chan struct{}
	count       atomic.Int64
	logger      *zap.Logger
}

func newHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		registerc:   make(chan *Client),
		unregisterc: make(chan *Client),
		stopped:     make(chan struct{}),
		logger:      logger,
	}
}

// run serves registrations until ctx is done, then closes every client.
func (h *Hub) run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.registerc:
			h.clients[client] = true
			h.count.Add(1)
			h.logger.Debug("client registered",
				zap.String("match_id", client.match.ID),
				zap.Stringer("player", client.player))

		case client := <-h.unregisterc:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Add(-1)
				h.logger.Debug("client unregistered",
					zap.String("match_id", client.match.ID),
					zap.Stringer("player", client.player))
			}

		case <-ctx.Done():
			for client := range h.clients {
				client.close()
			}
			h.logger.Info("websocket hub stopped", zap.Int("clients", len(h.clients)))
			h.clients = nil
			h.count.Store(0)
			return
		}
	}
}

// register returns false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case h.registerc <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterc <- c:
	case <-h.stopped:
	}
}

// Clients is the number of open connections.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}
