// Package testhelpers provides shared utilities for exercising the relay's
// wire protocol in tests: dialing, envelope encoding, and paced receives.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// DefaultOrigin is an origin accepted by the relay's default configuration.
const DefaultOrigin = "http://localhost:3000"

// Event is a decoded wire envelope.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Fields decodes the event payload into a generic map for assertions.
func (e Event) Fields(t *testing.T) map[string]any {
	t.Helper()
	var fields map[string]any
	require.NoError(t, json.Unmarshal(e.Data, &fields))
	return fields
}

// Client wraps a websocket connection with envelope encoding and a pending
// queue for frames that arrive coalesced into one websocket message.
type Client struct {
	Conn    *websocket.Conn
	pending []Event
}

// WebSocketURL converts an httptest server URL into the relay's ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// Dial opens a raw websocket connection with the given origin header. Used
// directly by tests that expect the handshake to fail.
func Dial(wsURL, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// Connect opens a client connection and registers cleanup.
func Connect(t *testing.T, wsURL, origin string) *Client {
	t.Helper()
	conn, err := Dial(wsURL, origin)
	require.NoError(t, err, "websocket dial failed")
	t.Cleanup(func() { _ = conn.Close() })
	return &Client{Conn: conn}
}

// Emit sends one envelope-framed event.
func (c *Client) Emit(t *testing.T, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Event{Event: event, Data: payload})
	require.NoError(t, err)
	require.NoError(t, c.Conn.WriteMessage(websocket.TextMessage, frame))
}

// EmitRaw sends arbitrary bytes, for malformed-frame tests.
func (c *Client) EmitRaw(t *testing.T, raw []byte) {
	t.Helper()
	require.NoError(t, c.Conn.WriteMessage(websocket.TextMessage, raw))
}

// Receive returns the next event, waiting up to timeout. Coalesced frames are
// split on the newline separator and queued.
func (c *Client) Receive(t *testing.T, timeout time.Duration) Event {
	t.Helper()

	if len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		return ev
	}

	require.NoError(t, c.Conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := c.Conn.ReadMessage()
	require.NoError(t, err, "expected an event, read failed")

	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal(line, &ev))
		c.pending = append(c.pending, ev)
	}

	require.NotEmpty(t, c.pending, "received frame contained no events")
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev
}

// ExpectEvent receives the next event and asserts its type.
func (c *Client) ExpectEvent(t *testing.T, event string, timeout time.Duration) map[string]any {
	t.Helper()
	ev := c.Receive(t, timeout)
	require.Equal(t, event, ev.Event)
	return ev.Fields(t)
}

// ExpectNone asserts that nothing arrives within the window. The read
// deadline it trips leaves the connection unusable for further reads, so
// call it only as a client's final read.
func (c *Client) ExpectNone(t *testing.T, timeout time.Duration) {
	t.Helper()

	require.Empty(t, c.pending, "events already queued")

	_ = c.Conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := c.Conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no event, got %s", raw)
	}
}
