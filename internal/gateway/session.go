package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
)

// Session is one connected client WebSocket. Outbound frames go through a
// bounded queue drained by a single write loop, so per-session order is
// total and a slow client never blocks a broadcast.
type Session struct {
	ID string

	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, hub *Hub, logger *slog.Logger) *Session {
	return &Session{
		ID:     id,
		hub:    hub,
		conn:   conn,
		logger: logger.With("session", id),
		send:   make(chan []byte, hub.cfg.Session.SendQueueSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues a frame for delivery. A full queue means the client is not
// keeping up; the session is dropped rather than buffered without bound.
func (s *Session) Send(frame protocol.Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshal frame failed", "type", frame.Type, "error", err)
		return false
	}

	select {
	case s.send <- data:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("send queue full, dropping session", "type", frame.Type)
		s.close()
		return false
	}
}

// close initiates the disconnect path exactly once. Registry cleanup and
// correlation purge run in the hub.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.hub.dropSession(s)
	})
}

// readLoop decodes inbound frames and hands them to the router. It owns
// the connection's read side and terminates on close or protocol error.
func (s *Session) readLoop() {
	defer s.close()

	s.conn.SetReadLimit(s.hub.cfg.Server.ReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.Server.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.Server.PongTimeout))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}

		s.hub.handleFrame(s, data)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

// writeLoop drains the send queue sequentially and keeps the connection
// alive with pings.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.hub.cfg.Server.PingInterval)
	defer ticker.Stop()
	defer s.close()

	for {
		select {
		case <-s.done:
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.Server.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed, dropping session", "error", err)
				return
			}
			s.hub.countSent()

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.Server.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
