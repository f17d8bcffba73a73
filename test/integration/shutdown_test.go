// Package integration verifies graceful shutdown of the hub and HTTP server.
package integration

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/internal/server"
)

func TestHubShutdownCompletes(t *testing.T) {
	hub := server.NewHub()
	go hub.Run()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.Shutdown(5*time.Second))
}

func TestHTTPServerShutdown(t *testing.T) {
	httpServer := server.CreateServer("127.0.0.1:0", server.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, server.ShutdownServer(httpServer, 5*time.Second))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("unexpected server error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}
