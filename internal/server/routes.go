package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/talkrooms/internal/confession"
)

// SetupRoutes builds the application router. confessions may be nil, in
// which case the confession endpoints are not mounted; submit wraps only the
// confession POST route.
func SetupRoutes(hub *Hub, confessions *confession.Handler, submit ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	// Preflight requests match a path but never a method, so they land here.
	r.MethodNotAllowedHandler = corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}))
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/ping", PingHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", WebSocketHandler(hub))

	if confessions != nil {
		confessions.Register(r, submit...)
	}
	return r
}
