package ws

import (
	"sync"

	"github.com/manpreetbhatti/easel/internal/broadcast"
	"github.com/manpreetbhatti/easel/internal/protocol"
	"github.com/manpreetbhatti/easel/internal/session"
	"github.com/sirupsen/logrus"
)

// Sessions is the room logic the transport feeds events into
type Sessions interface {
	Connect(connID string)
	Handle(connID string, ev session.Event) error
	Disconnect(connID string)
}

// Hub is the directory of live connections. It implements broadcast.Sink:
// delivery only enqueues onto each client's send buffer, and a client that
// cannot keep up is disconnected rather than silently missing messages.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	log     *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log.WithField("component", "hub"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.log.WithField("conn", c.id).Infof("Client connected (total: %d)", count)
}

// unregister removes c and closes its send buffer, which stops its write
// pump. Safe to call more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.id]
	if ok && current == c {
		delete(h.clients, c.id)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.WithField("conn", c.id).Infof("Client disconnected (remaining: %d)", count)
	}
}

// Deliver encodes msg once and queues it for every recipient still connected
func (h *Hub) Deliver(recipients []string, msg broadcast.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.log.WithError(err).WithField("event", msg.Kind).Error("Failed to encode message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range recipients {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.WithFields(logrus.Fields{"conn": id, "room": msg.Room}).Warn("Send buffer full, dropping client")
			c.kick()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ broadcast.Sink = (*Hub)(nil)
