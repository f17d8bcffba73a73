// Package integration contains end-to-end tests that exercise the relay over
// real websocket connections: room fan-out, sender exclusion, isolation, and
// disconnect cleanup.
package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/server"
	"chat-relay/test/testhelpers"
)

const (
	receiveTimeout = 2 * time.Second
	silenceWindow  = 300 * time.Millisecond
	settleDelay    = 100 * time.Millisecond
)

// startRelay boots the global hub, serves the routes from an httptest server,
// and points the configuration at the test origin.
func startRelay(t *testing.T) string {
	t.Helper()

	server.StartHub()

	config := server.NewConfig()
	config.AllowedOrigins = []string{testhelpers.DefaultOrigin}
	server.SetConfig(config)
	t.Cleanup(func() { server.SetConfig(nil) })

	testServer := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(testServer.Close)

	return testhelpers.WebSocketURL(testServer.URL)
}

func connectAndJoin(t *testing.T, wsURL, roomID string) *testhelpers.Client {
	t.Helper()
	c := testhelpers.Connect(t, wsURL, testhelpers.DefaultOrigin)
	c.Emit(t, "join-room", map[string]string{"roomId": roomID})
	return c
}

// TestRoomScenario walks the full protocol: two members exchange a message
// with the sender echoed, typing signals exclude the sender, and a
// disconnected member never reappears.
func TestRoomScenario(t *testing.T) {
	wsURL := startRelay(t)

	alice := connectAndJoin(t, wsURL, "r1")
	bob := connectAndJoin(t, wsURL, "r1")
	time.Sleep(settleDelay)

	sentAt := time.Now().UTC().Add(-time.Second)
	alice.Emit(t, "send-message", map[string]string{
		"roomId": "r1", "message": "hi", "userId": "u1", "username": "Alice",
	})

	for _, c := range []*testhelpers.Client{alice, bob} {
		fields := c.ExpectEvent(t, "receive-message", receiveTimeout)
		require.Equal(t, "hi", fields["message"])
		require.Equal(t, "u1", fields["userId"])
		require.Equal(t, "Alice", fields["username"])

		ts, err := time.Parse(time.RFC3339, fields["timestamp"].(string))
		require.NoError(t, err)
		require.True(t, ts.After(sentAt))
	}

	alice.Emit(t, "typing", map[string]string{
		"roomId": "r1", "userId": "u1", "username": "Alice",
	})
	fields := bob.ExpectEvent(t, "user-typing", receiveTimeout)
	require.Equal(t, "u1", fields["userId"])
	require.Equal(t, "Alice", fields["username"])

	alice.Emit(t, "stop-typing", map[string]string{"roomId": "r1", "userId": "u1"})
	fields = bob.ExpectEvent(t, "user-stop-typing", receiveTimeout)
	require.Equal(t, "u1", fields["userId"])

	// Alice never hears her own typing signals.
	alice.ExpectNone(t, silenceWindow)

	// Alice disconnects; a fresh member joins and traffic keeps flowing
	// without anything further attributed to her.
	require.NoError(t, alice.Conn.Close())
	time.Sleep(settleDelay)

	carol := connectAndJoin(t, wsURL, "r1")
	time.Sleep(settleDelay)

	// Alice's membership was purged on disconnect: the room now holds
	// exactly Bob and Carol.
	require.Len(t, server.GetHub().Rooms().MembersOf("r1"), 2)

	carol.Emit(t, "send-message", map[string]string{
		"roomId": "r1", "message": "hello", "userId": "u3", "username": "Carol",
	})

	for _, c := range []*testhelpers.Client{bob, carol} {
		fields := c.ExpectEvent(t, "receive-message", receiveTimeout)
		require.Equal(t, "u3", fields["userId"])
	}
	bob.ExpectNone(t, silenceWindow)
}

func TestFullRoomEchoManyMembers(t *testing.T) {
	wsURL := startRelay(t)

	const numClients = 5
	clients := make([]*testhelpers.Client, numClients)
	for i := range clients {
		clients[i] = connectAndJoin(t, wsURL, "big-room")
	}
	time.Sleep(settleDelay)

	clients[0].Emit(t, "send-message", map[string]string{
		"roomId": "big-room", "message": "fan-out", "userId": "u0", "username": "Zero",
	})

	for i, c := range clients {
		fields := c.ExpectEvent(t, "receive-message", receiveTimeout)
		require.Equal(t, "fan-out", fields["message"], "client %d", i)
	}
}

func TestRoomIsolationOverWire(t *testing.T) {
	wsURL := startRelay(t)

	alice := connectAndJoin(t, wsURL, "iso-1")
	bob := connectAndJoin(t, wsURL, "iso-2")
	time.Sleep(settleDelay)

	alice.Emit(t, "send-message", map[string]string{
		"roomId": "iso-1", "message": "secret", "userId": "u1", "username": "Alice",
	})

	alice.ExpectEvent(t, "receive-message", receiveTimeout)
	bob.ExpectNone(t, silenceWindow)
}

func TestJoinTwiceDeliversOnce(t *testing.T) {
	wsURL := startRelay(t)

	alice := connectAndJoin(t, wsURL, "dup-room")
	alice.Emit(t, "join-room", map[string]string{"roomId": "dup-room"})
	bob := connectAndJoin(t, wsURL, "dup-room")
	time.Sleep(settleDelay)

	bob.Emit(t, "send-message", map[string]string{
		"roomId": "dup-room", "message": "once", "userId": "u2", "username": "Bob",
	})

	fields := alice.ExpectEvent(t, "receive-message", receiveTimeout)
	require.Equal(t, "once", fields["message"])
	alice.ExpectNone(t, silenceWindow)
}

func TestMalformedFramesDoNotKillConnection(t *testing.T) {
	wsURL := startRelay(t)

	alice := connectAndJoin(t, wsURL, "robust")
	bob := connectAndJoin(t, wsURL, "robust")
	time.Sleep(settleDelay)

	alice.EmitRaw(t, []byte(`this is not json`))
	alice.EmitRaw(t, []byte(`{"event":"no-such-event","data":{}}`))
	alice.EmitRaw(t, []byte(`{"event":"send-message","data":{"roomId":"robust"}}`))

	alice.Emit(t, "send-message", map[string]string{
		"roomId": "robust", "message": "still here", "userId": "u1", "username": "Alice",
	})

	fields := bob.ExpectEvent(t, "receive-message", receiveTimeout)
	require.Equal(t, "still here", fields["message"])
}
