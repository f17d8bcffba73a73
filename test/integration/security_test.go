// Package integration verifies the relay's origin access control at the
// websocket handshake.
package integration

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/server"
	"chat-relay/test/testhelpers"
)

func startRelayWithOrigins(t *testing.T, origins []string) string {
	t.Helper()

	server.StartHub()

	config := server.NewConfig()
	config.AllowedOrigins = origins
	server.SetConfig(config)
	t.Cleanup(func() { server.SetConfig(nil) })

	testServer := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(testServer.Close)

	return testhelpers.WebSocketURL(testServer.URL)
}

func TestAllowedOriginCanConnect(t *testing.T) {
	wsURL := startRelayWithOrigins(t, []string{"http://app.example.com"})

	conn, err := testhelpers.Dial(wsURL, "http://app.example.com")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestDisallowedOriginIsBlocked(t *testing.T) {
	wsURL := startRelayWithOrigins(t, []string{"http://app.example.com"})

	conn, err := testhelpers.Dial(wsURL, "http://evil.example.com")
	require.Error(t, err)
	require.Nil(t, conn)
}

func TestMissingOriginIsBlocked(t *testing.T) {
	wsURL := startRelayWithOrigins(t, []string{"http://app.example.com"})

	conn, err := testhelpers.Dial(wsURL, "")
	require.Error(t, err)
	require.Nil(t, conn)
}

func TestWildcardOriginAllowsAnyOrigin(t *testing.T) {
	wsURL := startRelayWithOrigins(t, []string{"*"})

	conn, err := testhelpers.Dial(wsURL, "http://whatever.example.com")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestOriginComparisonIgnoresCase(t *testing.T) {
	wsURL := startRelayWithOrigins(t, []string{"http://App.Example.com"})

	conn, err := testhelpers.Dial(wsURL, "HTTP://app.example.COM")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	server.StartHub()

	testServer := httptest.NewServer(server.SetupRoutes())
	t.Cleanup(testServer.Close)

	resp, err := http.Post(testServer.URL+"/ws", "application/json", http.NoBody)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
