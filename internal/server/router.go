// Package server routes inbound wire events to their handlers. The router is
// the single place that interprets client payloads; everything past it works
// with typed values.
package server

import (
	"encoding/json"
	"log"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RelayHandler is the set of operations the router dispatches to. The Hub
// implements it; tests substitute a recording fake.
type RelayHandler interface {
	JoinRoom(sender *Session, roomID string)
	RelayMessage(roomID string, p SendMessagePayload, sender *Session)
	RelayTyping(roomID string, p TypingPayload, sender *Session)
	RelayStopTyping(roomID string, p StopTypingPayload, sender *Session)
}

// Router decodes inbound frames and dispatches on the event tag.
type Router struct {
	handler RelayHandler
}

// NewRouter creates a router bound to the given handler.
func NewRouter(h RelayHandler) *Router {
	return &Router{handler: h}
}

// Dispatch decodes one inbound frame from the sender and routes it. Malformed
// frames are logged and dropped; the connection keeps serving. Returns whether
// the frame was accepted.
func (r *Router) Dispatch(sender *Session, raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid frame from %s: %v", sender.addr, err)
		return false
	}

	switch env.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if !decodePayload(sender, env, &p) {
			return false
		}
		r.handler.JoinRoom(sender, p.RoomID)

	case EventSendMessage:
		var p SendMessagePayload
		if !decodePayload(sender, env, &p) {
			return false
		}
		r.handler.RelayMessage(p.RoomID, p, sender)

	case EventTyping:
		var p TypingPayload
		if !decodePayload(sender, env, &p) {
			return false
		}
		r.handler.RelayTyping(p.RoomID, p, sender)

	case EventStopTyping:
		var p StopTypingPayload
		if !decodePayload(sender, env, &p) {
			return false
		}
		r.handler.RelayStopTyping(p.RoomID, p, sender)

	default:
		log.Printf("Unknown event %q from %s; dropping", env.Event, sender.addr)
		return false
	}

	return true
}

// decodePayload unmarshals the envelope payload into out and checks the
// required fields. Presence and type checks only; field contents are trusted
// as supplied.
func decodePayload(sender *Session, env Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		log.Printf("Malformed %s payload from %s: %v", env.Event, sender.addr, err)
		return false
	}
	if err := validate.Struct(out); err != nil {
		log.Printf("Rejected %s event from %s: %v", env.Event, sender.addr, err)
		return false
	}
	return true
}
