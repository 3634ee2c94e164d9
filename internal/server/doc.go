// Package server is the network edge of the chat service.
//
// It upgrades HTTP requests to WebSocket connections, pumps frames between
// each socket and the Hub, and mounts the small REST surface (health, ping
// and confessions) on a gorilla/mux router. Configuration, origin policy and
// per-connection rate limiting live here too. Everything that decides what a
// frame means lives in the presence package; the Hub only forwards.
package server
