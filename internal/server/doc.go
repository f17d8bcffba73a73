// Package server implements an in-memory WebSocket relay for room-scoped chat
// messages and ephemeral typing signals.
//
// The implementation is organized into specialized files: session and room
// registries, the inbound event router, the broadcast engine, configuration,
// origin control, and HTTP wiring.
package server
