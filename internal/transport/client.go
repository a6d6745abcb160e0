package transport

import (
	"encoding/json"
	"sync"
	"time"

	"telemetry-hub/internal/identity"
	"telemetry-hub/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum inbound frame size.
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection. It satisfies hub.Session.
type Client struct {
	id      models.ConnID
	role    models.Role
	address string
	binding identity.Binding

	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// ID returns the connection handle.
func (c *Client) ID() models.ConnID { return c.id }

// Role returns the role requested at upgrade time.
func (c *Client) Role() models.Role { return c.role }

// Address returns the client's source address.
func (c *Client) Address() string { return c.address }

// Binding returns the connection's identity slot.
func (c *Client) Binding() *identity.Binding { return &c.binding }

// Send queues msg for the write pump. It never blocks: a full queue or a
// closed client drops the message and returns false.
func (c *Client) Send(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops the write pump after it flushes what is already queued.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump processes inbound frames one at a time until the connection
// fails. It runs on the upgrade goroutine.
func (c *Client) readPump(handler Handler, pongWait time.Duration) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env models.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("Failed to parse frame", zap.Error(err))
			continue
		}
		handler.OnMessage(c, env)
	}
}

// writePump drains the send queue and pings the peer every pingInterval.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("Websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
