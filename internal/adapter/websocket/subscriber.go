// Package websocket serves the live reading stream over gorilla/websocket.
package websocket

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/citypulse/internal/broadcast"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var (
	errClosed    = errors.New("subscriber closed")
	errQueueFull = errors.New("subscriber queue full")
)

// Subscriber is a broadcast.Subscriber backed by one WebSocket connection.
// Outbound messages go through a bounded queue drained by a single writer
// goroutine, so Send never blocks the publisher.
type Subscriber struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	writeTimeout time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *Subscriber {
	id := uuid.NewString()
	return &Subscriber{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		logger:       logger.With("subscriber", id),
	}
}

func (s *Subscriber) ID() string { return s.id }

// Send enqueues msg without blocking.
func (s *Subscriber) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	select {
	case s.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

// Close stops the writer and closes the connection. It is safe to call more
// than once.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// writePump drains the queue onto the connection and keeps it alive with pings.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close() //nolint:errcheck // connection already failing or closing
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)) //nolint:errcheck // surfaced by WriteMessage
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)) //nolint:errcheck // surfaced by WriteMessage
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and returns when the peer goes away.
func (s *Subscriber) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck // surfaced by ReadMessage
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// Handler upgrades HTTP requests and registers each connection with the hub
// until the peer disconnects.
type Handler struct {
	hub          *broadcast.Hub
	upgrader     websocket.Upgrader
	queueSize    int
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHandler creates the live stream endpoint.
func NewHandler(hub *broadcast.Hub, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn, h.queueSize, h.writeTimeout, h.logger)
	h.hub.Register(sub)
	sub.logger.Info("live client connected", "remote_addr", r.RemoteAddr)

	go sub.writePump()
	sub.readPump()

	h.hub.Unregister(sub)
	sub.Close() //nolint:errcheck // peer already gone
	sub.logger.Info("live client disconnected")
}
