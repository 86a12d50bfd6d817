package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/easel/internal/protocol"
	"github.com/manpreetbhatti/easel/internal/ratelimit"
	"github.com/manpreetbhatti/easel/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Config struct {
	MessagesPerSecond float64
	MessageBurst      int
	SendBuffer        int
}

func DefaultConfig() Config {
	return Config{
		MessagesPerSecond: 100,
		MessageBurst:      200,
		SendBuffer:        512,
	}
}

// Handler upgrades HTTP requests to WebSocket connections and wires each
// one to the hub and the session coordinator
type Handler struct {
	hub      *Hub
	sessions Sessions
	decoder  *protocol.Decoder
	config   Config
	log      *logrus.Entry
}

func NewHandler(hub *Hub, sessions Sessions, decoder *protocol.Decoder, config Config, log *logrus.Entry) *Handler {
	return &Handler{
		hub:      hub,
		sessions: sessions,
		decoder:  decoder,
		config:   config,
		log:      log.WithField("component", "ws"),
	}
}

// ServeHTTP accepts an optional ?room= query parameter, which joins the
// room as soon as the connection is up
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Upgrade error")
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:       id,
		hub:      h.hub,
		sessions: h.sessions,
		decoder:  h.decoder,
		conn:     conn,
		send:     make(chan []byte, h.config.SendBuffer),
		limiter:  ratelimit.NewLimiter(h.config.MessagesPerSecond, h.config.MessageBurst),
		autoJoin: r.URL.Query().Get("room"),
		log:      h.log.WithFields(logrus.Fields{"conn": id, "remote": conn.RemoteAddr().String()}),
	}

	h.hub.register(client)
	h.sessions.Connect(id)

	go client.writePump()
	go client.readPump()
}

type Client struct {
	id       string
	hub      *Hub
	sessions Sessions
	decoder  *protocol.Decoder
	conn     *websocket.Conn
	send     chan []byte
	limiter  *ratelimit.Limiter
	autoJoin string
	log      *logrus.Entry
	kickOnce sync.Once
}

func (c *Client) ID() string { return c.id }

// kick closes the socket, which ends the read pump and runs the normal
// disconnect path
func (c *Client) kick() {
	c.kickOnce.Do(func() {
		if c.conn != nil {
			go c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sessions.Disconnect(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if c.autoJoin != "" {
		ev, err := c.decoder.Join(c.autoJoin)
		if err != nil {
			c.reject(err)
		} else {
			c.handle(ev)
		}
	}

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.Warnf("Rate limit exceeded (warning #%d)", rateLimitWarnings)
			}
			if rateLimitWarnings > 1000 {
				c.log.Warn("Disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		ev, err := c.decoder.Decode(message)
		if err != nil {
			c.reject(err)
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev session.Event) {
	if err := c.sessions.Handle(c.id, ev); err != nil {
		c.reject(err)
	}
}

// reject tells only this client why its request was refused
func (c *Client) reject(err error) {
	c.log.WithError(err).Info("Rejected client message")
	c.hub.Deliver([]string{c.id}, protocol.ErrorMessage(err))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Debug("Write failed")
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
