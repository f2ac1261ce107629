package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"savegrid.ai/internal/protocol"
	"savegrid.ai/internal/sim/orchestrator"
)

type client struct {
	id   string
	role string
	out  chan []byte
}

// Hub fans step reports out to connected clients. It implements orchestrator.Publisher:
// a slow client loses messages rather than stalling the tick.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: map[string]*client{}}
}

func (h *Hub) PublishStep(rep orchestrator.StepReport) {
	b, err := json.Marshal(rep.Message())
	if err != nil {
		return
	}
	h.broadcast(b)
	for _, a := range rep.Alerts {
		b, err := json.Marshal(protocol.AlertMsg{
			Type:            protocol.TypeAlert,
			ProtocolVersion: protocol.Version,
			Alert:           orchestrator.AlertObs(a),
		})
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
}

func (h *Hub) broadcast(b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.out <- b:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Sent() uint64    { return h.sent.Load() }
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
