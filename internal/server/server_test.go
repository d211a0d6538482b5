package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nbcopilot/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Port = freePort(t)
	cfg.LLM.APIKey = "test-key"
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startServer(t *testing.T, cfg config.Config) {
	t.Helper()
	srv, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
}

func waitForHealth(t *testing.T, port int) {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 25*time.Millisecond)
}

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)
	startServer(t, cfg)
	waitForHealth(t, cfg.Port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Port))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, float64(0), body["subscribers"])
}

func TestPortProbing(t *testing.T) {
	cfg := testConfig(t)

	// Occupy the configured port; the server must move up.
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Port))
	require.NoError(t, err)
	defer ln.Close()

	startServer(t, cfg)
	waitForHealth(t, cfg.Port+1)
}

func TestWebsocketSessionAck(t *testing.T) {
	cfg := testConfig(t)
	startServer(t, cfg)
	waitForHealth(t, cfg.Port)

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", cfg.Port)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "session_ready"))
}

func TestNewRejectsMissingAPIKey(t *testing.T) {
	cfg := config.Default()
	_, err := New(cfg, zap.NewNop())
	require.Error(t, err)
}
