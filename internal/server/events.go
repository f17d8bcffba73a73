// Package server defines the wire-level event types exchanged with clients.
// Every frame is an Envelope carrying an event tag and a JSON payload; the
// payload structs below are the exact compatibility contract.
package server

import "encoding/json"

// Inbound event names.
const (
	EventJoinRoom    = "join-room"
	EventSendMessage = "send-message"
	EventTyping      = "typing"
	EventStopTyping  = "stop-typing"
)

// Outbound event names.
const (
	EventReceiveMessage = "receive-message"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
)

// Envelope frames every event on the wire as a tag plus raw payload. Inbound
// payloads stay raw until the router knows which struct to decode into.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRoomPayload subscribes the sending session to a room.
type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// SendMessagePayload carries one chat message bound for a room. The message
// body may be empty; empty messages are relayed as-is.
type SendMessagePayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	Message  string `json:"message"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// TypingPayload signals that a user started composing a message.
type TypingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// StopTypingPayload signals that a user stopped composing a message.
type StopTypingPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

// MessageEvent is the outbound receive-message payload. Timestamp is assigned
// by the relay at processing time, never taken from the client.
type MessageEvent struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// TypingEvent is the outbound user-typing payload.
type TypingEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// StopTypingEvent is the outbound user-stop-typing payload.
type StopTypingEvent struct {
	UserID string `json:"userId"`
}
