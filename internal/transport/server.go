// Package transport is the websocket front end of the hub. It owns every
// live connection and the set of observers the broadcaster writes to.
package transport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"telemetry-hub/internal/broadcast"
	"telemetry-hub/internal/hub"
	"telemetry-hub/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler receives connection lifecycle events. Calls for one connection are
// sequential; calls for different connections run concurrently.
type Handler interface {
	OnConnect(s hub.Session, join func())
	OnMessage(s hub.Session, env models.Envelope)
	OnDisconnect(s hub.Session)
}

// Options tunes per-connection buffering and liveness.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
	PongWait     time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	return o
}

// Server upgrades HTTP requests to websocket connections.
type Server struct {
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  Handler

	mu        sync.RWMutex
	clients   map[models.ConnID]*Client
	observers map[models.ConnID]*Client
	closing   bool
	wg        sync.WaitGroup
}

// NewServer creates a Server. SetHandler must be called before serving.
func NewServer(opts Options, logger *zap.Logger) *Server {
	return &Server{
		opts:   opts.withDefaults(),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:   make(map[models.ConnID]*Client),
		observers: make(map[models.ConnID]*Client),
	}
}

// SetHandler installs the event handler.
func (s *Server) SetHandler(h Handler) {
	s.handler = h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := models.ParseRole(r.URL.Query().Get("role"))
	address := SourceAddress(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed",
			zap.String("remote_addr", address),
			zap.Error(err),
		)
		return
	}

	id := models.ConnID("conn_" + uuid.NewString())
	c := &Client{
		id:      id,
		role:    role,
		address: address,
		conn:    conn,
		send:    make(chan []byte, s.opts.SendBuffer),
		logger:  s.logger.With(zap.String("conn_id", string(id))),
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[id] = c
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	go c.writePump(s.opts.PingInterval)

	var join func()
	if role == models.RoleObserver {
		join = func() { s.addObserver(c) }
	}
	s.handler.OnConnect(c, join)

	c.readPump(s.handler, s.opts.PongWait)

	s.remove(c)
	s.handler.OnDisconnect(c)
	c.close()
}

// Observers returns the observer connections currently open.
func (s *Server) Observers() []broadcast.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]broadcast.Peer, 0, len(s.observers))
	for _, c := range s.observers {
		out = append(out, c)
	}
	return out
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes every connection and waits for their handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range conns {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) addObserver(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.id]; ok {
		s.observers[c.id] = c
	}
}

func (s *Server) remove(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, c.id)
	delete(s.observers, c.id)
}

// SourceAddress returns the first X-Forwarded-For entry, or the host part of
// the peer address.
func SourceAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
