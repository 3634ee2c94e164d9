package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET /ws and hands the connection to hub. The
// optional clientId query parameter travels with the connection; when
// REQUIRE_CLIENT_ID is set a request without one is refused before the
// upgrade.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		clientID := r.URL.Query().Get("clientId")
		if clientID == "" && currentConfig().RequireClientID {
			hub.log.Info("Rejected WebSocket request without clientId", "addr", r.RemoteAddr)
			http.Error(w, "clientId query parameter is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Info("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr, clientID)
		if !hub.Register(client) {
			client.closeConnection()
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Talkrooms server is running!")
}

// PingHandler answers keep-alive probes from hosting platforms that idle
// servers without traffic.
func PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "awake")
}
