package web

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pairflow-go/internal/market"
	"pairflow-go/internal/metrics"
)

const clientQueueSize = 256

// Hub fans live ticks out to websocket subscribers. Each client gets a
// bounded send queue; a client that cannot drain it is dropped rather than
// allowed to stall the broadcast path.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	log     zerolog.Logger
}

type hubClient struct {
	conn *websocket.Conn
	send chan market.Tick
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*hubClient]struct{}), log: log}
}

// Broadcast queues a tick for every connected client. Clients with a full
// queue are disconnected.
func (h *Hub) Broadcast(tk market.Tick) {
	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- tk:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.dropLocked(c)
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.log.Warn().Msg("dropping slow websocket client")
		c.conn.Close()
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		h.dropLocked(c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) add(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.StreamClients.Inc()
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		h.dropLocked(c)
	}
	h.mu.Unlock()
	if present {
		c.conn.Close()
	}
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(c *hubClient) {
	delete(h.clients, c)
	close(c.send)
	metrics.StreamClients.Dec()
}

// serve pumps queued ticks to one client until the queue closes, the context
// ends, or the write fails.
func (h *Hub) serve(ctx context.Context, conn *websocket.Conn) {
	client := &hubClient{conn: conn, send: make(chan market.Tick, clientQueueSize)}
	h.add(client)
	defer h.remove(client)

	// Reads are discarded; their only purpose is detecting disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(client)
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tk, ok := <-client.send:
			if !ok {
				return
			}
			if err := conn.WriteJSON(tk); err != nil {
				return
			}
		}
	}
}
