// Package server manages individual client sessions: each wraps one WebSocket
// connection with a unique identifier, a buffered outbound channel, and the
// read/write pumps that move frames in and out.
package server

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Session is an opaque handle to one live connection. It is owned by the
// SessionRegistry; rooms hold references to it but never own it.
type Session struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *rateLimiter
	rateLimit      RateLimitConfig
}

// NewSession wraps an accepted connection in a fresh session. The identifier
// is a v4 UUID, generated per connection and never reused.
func NewSession(conn *websocket.Conn, hub *Hub, addr string) *Session {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Session{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// SessionRegistry owns the set of live sessions, keyed by identifier.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Add records the session as live and returns the new live count.
func (r *SessionRegistry) Add(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.closed = false
	r.sessions[s.id] = s
	return len(r.sessions)
}

// Remove marks the session no longer live and closes its outbound channel.
// A second Remove for the same identifier is a no-op, not an error.
func (r *SessionRegistry) Remove(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.sessions, id)
	s.closed = true
	r.mu.Unlock()

	// Closed outside the lock; push holds the read lock during sends, so no
	// send can race the close.
	close(s.send)
	return s, true
}

// Get looks up a live session by identifier.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current live set.
func (r *SessionRegistry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// push queues a payload on the session's outbound channel without blocking.
// It reports false when the session is gone or its buffer is full; the caller
// decides whether that recipient gets pruned.
func (r *SessionRegistry) push(s *Session, payload []byte) (delivered bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered from panic pushing to %s: %v", s.addr, rec)
			delivered = false
		}
	}()

	r.mu.RLock()
	defer r.mu.RUnlock()

	live, ok := r.sessions[s.id]
	if !ok || live != s || s.closed {
		return false
	}

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// setupReadConnection configures the read deadline and pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", s.addr, err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", s.addr, err)
		}
		return nil
	})
}

// logReadError classifies a read failure. Every read failure ends the pump;
// the distinction only affects what gets logged.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", s.addr, s.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Session %s disconnected: %v", s.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Session %s connection closed: %v", s.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", s.addr, err)
	}
}

// readPump reads inbound frames and hands them to the router until the
// connection dies, then notifies the hub so membership is cleaned up.
func (s *Session) readPump() {
	defer func() {
		// During hub shutdown the run loop is gone; don't wait on it.
		select {
		case s.hub.unregister <- s:
		case <-s.hub.ctx.Done():
		}
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if s.limiter != nil && !s.limiter.allow() {
			log.Printf("Rate limit exceeded for %s (%d events per %s); discarding frame",
				s.addr, s.rateLimit.Burst, s.rateLimit.RefillInterval)
			continue
		}

		s.hub.router.Dispatch(s, raw)
	}
}

// writePump drains the outbound channel onto the connection and keeps the
// connection alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !s.writeOutbound(payload, ok) {
				return
			}
		case <-ticker.C:
			if !s.writePing() {
				return
			}
		}
	}
}

// writeOutbound writes one payload plus anything else already queued, using a
// newline separator between coalesced frames. Returns false when the pump
// should stop.
func (s *Session) writeOutbound(payload []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", s.addr, err)
		return false
	}

	if !ok {
		// Registry closed the channel; tell the peer we are done.
		if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", s.addr, err)
		}
		return false
	}

	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		log.Printf("Error creating writer for %s: %v", s.addr, err)
		return false
	}

	if _, err := w.Write(payload); err != nil {
		log.Printf("Error writing payload to %s: %v", s.addr, err)
		return false
	}

	queued := len(s.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			log.Printf("Error writing separator to %s: %v", s.addr, err)
			return false
		}
		if _, err := w.Write(<-s.send); err != nil {
			log.Printf("Error writing queued payload to %s: %v", s.addr, err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		log.Printf("Error closing writer for %s: %v", s.addr, err)
		return false
	}
	return true
}

func (s *Session) writePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", s.addr, err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping to %s: %v", s.addr, err)
		return false
	}
	return true
}

// isExpectedCloseError reports whether an error is routine connection
// teardown rather than something worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
