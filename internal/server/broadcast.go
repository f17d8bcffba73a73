// Package server implements the broadcast engine: room-scoped fan-out with
// per-event-type sender exclusion. Message events echo back to the sender;
// typing signals never do.
package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/samber/lo"
)

// Millisecond-precision UTC timestamp, matching what browser clients produce
// with Date.toISOString().
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RelayEvent is one fan-out instruction queued to the hub's run loop.
type RelayEvent struct {
	Room          string
	Event         string
	Data          any
	Sender        *Session
	IncludeSender bool
}

// RelayMessage queues a chat message for delivery to every member of the
// room, the sender included. The timestamp is assigned when the run loop
// processes the event, not here.
func (h *Hub) RelayMessage(roomID string, p SendMessagePayload, sender *Session) {
	h.enqueue(RelayEvent{
		Room:          roomID,
		Event:         EventReceiveMessage,
		Data:          &MessageEvent{Message: p.Message, UserID: p.UserID, Username: p.Username},
		Sender:        sender,
		IncludeSender: true,
	})
}

// RelayTyping queues a typing-start signal for every room member except the
// sender.
func (h *Hub) RelayTyping(roomID string, p TypingPayload, sender *Session) {
	h.enqueue(RelayEvent{
		Room:   roomID,
		Event:  EventUserTyping,
		Data:   &TypingEvent{UserID: p.UserID, Username: p.Username},
		Sender: sender,
	})
}

// RelayStopTyping queues a typing-stop signal for every room member except
// the sender.
func (h *Hub) RelayStopTyping(roomID string, p StopTypingPayload, sender *Session) {
	h.enqueue(RelayEvent{
		Room:   roomID,
		Event:  EventUserStopTyping,
		Data:   &StopTypingEvent{UserID: p.UserID},
		Sender: sender,
	})
}

// JoinRoom subscribes the sender to a room. Part of the RelayHandler surface
// so the router stays transport-only.
func (h *Hub) JoinRoom(sender *Session, roomID string) {
	h.rooms.Join(sender, roomID)
	log.Printf("Session %s joined room %s", sender.id, roomID)
}

func (h *Hub) enqueue(ev RelayEvent) {
	select {
	case h.relay <- ev:
	case <-h.ctx.Done():
	}
}

// deliver fans one relay event out to the room's current membership. It runs
// on the hub's run loop: events for the same room are delivered in the order
// they were accepted, and message timestamps are non-decreasing.
func (h *Hub) deliver(ev RelayEvent) {
	if m, ok := ev.Data.(*MessageEvent); ok {
		m.Timestamp = time.Now().UTC().Format(timestampLayout)
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		log.Printf("Error encoding %s payload: %v", ev.Event, err)
		return
	}
	payload, err := json.Marshal(Envelope{Event: ev.Event, Data: data})
	if err != nil {
		log.Printf("Error encoding %s envelope: %v", ev.Event, err)
		return
	}

	members := h.rooms.MembersOf(ev.Room)
	targets := lo.Filter(members, func(s *Session, _ int) bool {
		return ev.IncludeSender || s != ev.Sender
	})

	log.Printf("Relaying %s to %d members of room %s", ev.Event, len(targets), ev.Room)

	// Best-effort per recipient: a full or closed buffer skips that member
	// without aborting the rest, then the member is pruned.
	var failed []*Session
	for _, s := range targets {
		if !h.sessions.push(s, payload) {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		log.Printf("Session %s from %s removed due to full send buffer", s.id, s.addr)
		h.drop(s)
	}
}
