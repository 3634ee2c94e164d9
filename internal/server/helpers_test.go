package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/talkrooms/internal/confession"
	"github.com/Tyrowin/talkrooms/internal/presence"
	"github.com/Tyrowin/talkrooms/internal/signaling"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	server     *httptest.Server
	hub        *Hub
	controller *presence.Controller
	wsURL      string
}

// configureServerForTest applies a config that trusts baseURL as an origin
// and restores the defaults when the test ends.
func configureServerForTest(t *testing.T, baseURL string, customize func(cfg *Config)) {
	t.Helper()
	cfg := NewConfig()
	cfg.AllowedOrigins = append([]string{baseURL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })
}

// startTestServer runs the full stack behind an httptest server.
func startTestServer(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()
	log := discardLogger()

	probe := NewConfig()
	if customize != nil {
		customize(probe)
	}

	hub := NewHub(log)
	controller := presence.NewController(hub, log, presence.Options{StrictMembership: probe.StrictRooms})
	controller.UseRelay(signaling.NewRelay(controller.Broadcaster(), log))
	hub.SetCoordinator(controller)
	StartHub(hub)

	router := SetupRoutes(hub, confession.NewHandler(confession.NewMemoryStore(), log))
	ts := httptest.NewServer(router)
	configureServerForTest(t, ts.URL, customize)

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return &testEnv{
		server:     ts,
		hub:        hub,
		controller: controller,
		wsURL:      "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL+query, newOriginHeader(e.server.URL))
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	// Every connection is greeted with the public room list.
	readEvent(t, conn, presence.EventActiveRooms)
	return conn
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env := map[string]any{"event": event}
	if data != nil {
		env["data"] = data
	}
	require.NoError(t, conn.WriteJSON(env))
}

// readEvent reads frames until one named event arrives and returns its data.
func readEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var f wireFrame
		require.NoError(t, json.Unmarshal(raw, &f), "frame %s", raw)
		if f.Event == event {
			return f.Data
		}
	}
}

// expectNoEvent fails if event arrives on conn within timeout.
func expectNoEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.Fatalf("unexpected error while waiting for absence of %s: %v", event, err)
		}
		var f wireFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		require.NotEqual(t, event, f.Event, "unexpected %s: %s", event, raw)
	}
}
