package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/talkrooms/internal/presence"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection. The hub writes frames into send; the
// write pump drains it onto the socket.
type Client struct {
	id             presence.ConnID
	clientID       string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	closeOnce      sync.Once
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *slog.Logger
}

// NewClient wraps an upgraded connection. clientID is the optional handshake
// token the browser sent with the upgrade request.
func NewClient(conn *websocket.Conn, hub *Hub, addr, clientID string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := presence.ConnID(uuid.NewString())

	return &Client{
		id:             id,
		clientID:       clientID,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, time.Duration(cfg.RateLimit.RefillInterval)),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With("conn", id),
	}
}

// ID returns the server-assigned connection id.
func (c *Client) ID() presence.ConnID {
	return c.id
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Debug("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the read failure at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("Client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		c.log.Info("WebSocket read error", "error", err)
	}
}

// checkRateLimit reports whether the next inbound frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding message",
			"burst", c.rateLimit.Burst, "interval", time.Duration(c.rateLimit.RefillInterval))
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.submitUnregister(c)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debug("Ignoring non-text frame", "type", messageType)
			continue
		}
		if !c.checkRateLimit() {
			continue
		}
		c.hub.submitInbound(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeFrames(message)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the socket once; later calls are no-ops.
func (c *Client) closeConnection() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection", "error", err)
		}
	})
}

func (c *Client) writeCloseMessage() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error writing close message", "error", err)
	}
	return false
}

// writeFrames writes message and whatever else is already queued. Every
// envelope goes out as its own text frame.
func (c *Client) writeFrames(message []byte) bool {
	if !c.writeFrame(message) {
		return false
	}
	for n := len(c.send); n > 0; n-- {
		queued, ok := <-c.send
		if !ok {
			return c.writeCloseMessage()
		}
		if !c.writeFrame(queued) {
			return false
		}
	}
	return true
}

func (c *Client) writeFrame(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping message", "error", err)
		return false
	}
	return true
}
