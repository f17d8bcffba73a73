// Package server coordinates session registration, room membership, and event
// fan-out through the Hub type. All fan-out flows through a single run loop,
// which is what gives each room its FIFO delivery order.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// Hub owns the session and room registries and serializes relay traffic.
type Hub struct {
	sessions *SessionRegistry
	rooms    *RoomRegistry
	router   *Router

	register   chan *Session
	unregister chan *Session
	relay      chan RelayEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub ready to manage connections. Run must be started in
// its own goroutine before the hub accepts traffic.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions:   NewSessionRegistry(),
		rooms:      NewRoomRegistry(),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		relay:      make(chan RelayEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.router = NewRouter(h)
	return h
}

// Rooms exposes the room registry for membership queries.
func (h *Hub) Rooms() *RoomRegistry {
	return h.rooms
}

// Register queues a session for registration; the run loop starts its pumps.
func (h *Hub) Register(s *Session) {
	select {
	case h.register <- s:
	case <-h.ctx.Done():
	}
}

var hub = NewHub()

// Run is the hub's main event loop. It handles registration, disconnect
// cleanup, and relay fan-out until the hub is shut down.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			if s == nil {
				log.Printf("Received nil session registration; skipping")
				continue
			}

			count := h.sessions.Add(s)
			log.Printf("Session %s connected from %s. Total sessions: %d", s.id, s.addr, count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				s.writePump()
			}()
			go func() {
				defer h.wg.Done()
				s.readPump()
			}()

		case s := <-h.unregister:
			h.drop(s)

		case ev := <-h.relay:
			h.deliver(ev)
		}
	}
}

// drop runs the disconnect cascade: the session leaves the live set and every
// room it was a member of. A second drop for the same session is a no-op.
func (h *Hub) drop(s *Session) {
	if s == nil {
		return
	}
	if _, ok := h.sessions.Remove(s.id); !ok {
		return
	}
	h.rooms.LeaveAll(s)
	log.Printf("Session %s disconnected from %s. Total sessions: %d", s.id, s.addr, h.sessions.Len())
}

// shutdownSessions closes every live connection during hub shutdown.
func (h *Hub) shutdownSessions() {
	log.Println("Shutting down all client sessions...")

	sessions := h.sessions.Snapshot()
	for _, s := range sessions {
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing session %s from %s: %v", s.id, s.addr, err)
			}
		}
		// Closing the send channel wakes the write pump so it can exit.
		h.sessions.Remove(s.id)
	}

	log.Printf("Closed %d sessions", len(sessions))
}

// Shutdown initiates graceful shutdown and waits for the run loop and all
// session goroutines to finish, or for the timeout to expire.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
