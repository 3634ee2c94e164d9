package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/talkrooms/internal/presence"
)

// Coordinator receives connection lifecycle signals and inbound frames from
// the Hub. The Hub calls it from a single goroutine.
type Coordinator interface {
	Connect(conn presence.ConnID, clientID string)
	Handle(conn presence.ConnID, frame []byte) error
	Disconnect(conn presence.ConnID)
}

type inboundFrame struct {
	client *Client
	frame  []byte
}

// Hub owns every live WebSocket client. Registration, unregistration and
// inbound frames all pass through Run, so the Coordinator sees one event at a
// time in the order each connection sent them.
type Hub struct {
	clients     map[presence.ConnID]*Client
	register    chan *Client
	unregister  chan *Client
	inbound     chan inboundFrame
	coordinator Coordinator
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	log         *slog.Logger
}

// NewHub creates a Hub. SetCoordinator must be called before Run.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[presence.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// SetCoordinator installs the component that applies lifecycle events.
func (h *Hub) SetCoordinator(c Coordinator) {
	h.coordinator = c
}

// Register hands a freshly upgraded client to the hub. It reports false when
// the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) submitUnregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) submitInbound(c *Client, frame []byte) {
	select {
	case h.inbound <- inboundFrame{client: c, frame: frame}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Deliver queues frame on conn's send buffer without blocking. A client whose
// buffer is full is disconnected; its read pump then unregisters it.
func (h *Hub) Deliver(conn presence.ConnID, frame []byte) error {
	h.mutex.RLock()
	client, ok := h.clients[conn]
	if !ok || client.closed {
		h.mutex.RUnlock()
		return fmt.Errorf("deliver to %s: %w", conn, presence.ErrNotRegistered)
	}
	sent := h.safeSend(client, frame)
	h.mutex.RUnlock()

	if sent {
		return nil
	}
	h.log.Warn("Send buffer full, closing connection", "conn", conn, "addr", client.addr)
	client.closeConnection()
	return fmt.Errorf("deliver to %s: %w", conn, presence.ErrDeliveryFailed)
}

// safeSend must be called with h.mutex held for reading.
func (h *Hub) safeSend(client *Client, message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "conn", client.id, "panic", r)
			sent = false
		}
	}()

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.inbound:
			h.guard(msg.client.id, "handle", func() {
				if err := h.coordinator.Handle(msg.client.id, msg.frame); err != nil {
					h.log.Warn("Dropped inbound event", "conn", msg.client.id, "error", err)
				}
			})
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		h.log.Warn("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()
	h.log.Info("Client registered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	h.guard(client.id, "connect", func() {
		h.coordinator.Connect(client.id, client.clientID)
	})

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	h.log.Info("Client unregistered", "conn", client.id, "addr", client.addr, "clients", clientCount)

	h.guard(client.id, "disconnect", func() {
		h.coordinator.Disconnect(client.id)
	})
}

// guard keeps a panic raised while handling one connection from taking the
// hub down with it.
func (h *Hub) guard(conn presence.ConnID, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic", "stage", stage, "conn", conn, "panic", r)
		}
	}()
	fn()
}

// shutdownClients closes every connection and its send channel so both pumps
// of each client return.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, id)
		if !client.closed {
			client.closed = true
			close(client.send)
		}
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for every client goroutine to finish, or
// until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
