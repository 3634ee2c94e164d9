package presence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Relay forwards WebRTC negotiation events between two connections.
type Relay interface {
	Forward(from ConnID, event string, data json.RawMessage) error
}

// Options tune a Controller.
type Options struct {
	// StrictMembership rejects message and private_message events from
	// connections that are not members of the addressed room.
	StrictMembership bool
	// Now overrides the clock used for outbound timestamps.
	Now func() time.Time
}

// Controller applies connection lifecycle and inbound events to the
// registries. Every operation holds the controller mutex for its whole
// duration, so the registries always change together.
type Controller struct {
	mu sync.Mutex

	registry    *Registry
	directory   *Directory
	broadcaster *Broadcaster
	notifier    *Notifier
	matchmaker  *Matchmaker
	relay       Relay

	validate *validator.Validate
	strict   bool
	now      func() time.Time
	log      *slog.Logger
}

// NewController builds the presence core on top of out.
func NewController(out Deliverer, log *slog.Logger, opts Options) *Controller {
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	registry := NewRegistry()
	directory := NewDirectory()
	broadcaster := NewBroadcaster(registry, directory, out, log)
	matchmaker := NewMatchmaker(registry, directory, broadcaster, log)
	matchmaker.now = now

	return &Controller{
		registry:    registry,
		directory:   directory,
		broadcaster: broadcaster,
		notifier:    NewNotifier(registry, broadcaster),
		matchmaker:  matchmaker,
		validate:    validator.New(),
		strict:      opts.StrictMembership,
		now:         now,
		log:         log,
	}
}

// UseRelay installs the signaling relay. Without one, offer, answer and
// ice-candidate are unknown events.
func (c *Controller) UseRelay(r Relay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relay = r
}

// Registry returns the connection registry.
func (c *Controller) Registry() *Registry { return c.registry }

// Directory returns the room directory.
func (c *Controller) Directory() *Directory { return c.directory }

// Broadcaster returns the broadcaster the controller emits through.
func (c *Controller) Broadcaster() *Broadcaster { return c.broadcaster }

// Matchmaker returns the stranger queue.
func (c *Controller) Matchmaker() *Matchmaker { return c.matchmaker }

// Connect registers conn and sends it the public room list.
func (c *Controller) Connect(conn ConnID, clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registry.Register(conn, clientID)
	c.broadcaster.ToOne(conn, EventActiveRooms, c.directory.PublicRoomIDs())
	c.log.Info("Client connected", "conn", conn, "clientId", clientID, "clients", c.registry.Len())
}

// Disconnect removes every trace of conn. Unknown connections are ignored.
func (c *Controller) Disconnect(conn ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.registry.Get(conn)
	if err != nil {
		return
	}

	rooms := c.directory.LeaveAll(conn)
	c.registry.Remove(conn)
	c.matchmaker.OnDisconnect(conn)

	for _, room := range rooms {
		c.broadcaster.ToRoom(room, EventSystemMessage, c.system(s.Username+" left the room"))
		c.broadcaster.ToRoom(room, EventActiveUsers, c.broadcaster.ActiveUsers(room))
	}
	c.broadcaster.ToAll(EventActiveRooms, c.directory.PublicRoomIDs())
	c.log.Info("Client disconnected", "conn", conn, "rooms", len(rooms), "clients", c.registry.Len())
}

// Handle decodes one inbound frame and applies it.
func (c *Controller) Handle(conn ConnID, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode envelope: %w: %v", ErrMalformedRequest, err)
	}
	if env.Event == "" {
		return fmt.Errorf("decode envelope: %w: missing event", ErrMalformedRequest)
	}
	if !c.registry.Has(conn) {
		return fmt.Errorf("%s from %s: %w", env.Event, conn, ErrNotRegistered)
	}

	switch env.Event {
	case EventJoinRoom:
		var req JoinRoomRequest
		if err := c.decode(env, &req); err != nil {
			return err
		}
		return c.JoinRoom(conn, req)
	case EventLeaveRoom:
		var req LeaveRoomRequest
		if err := c.decode(env, &req); err != nil {
			return err
		}
		return c.LeaveRoom(conn, req)
	case EventMessage:
		var msg ChatMessage
		if err := c.decode(env, &msg); err != nil {
			return err
		}
		return c.SendMessage(conn, msg)
	case EventTyping:
		var req TypingRequest
		if err := c.decode(env, &req); err != nil {
			return err
		}
		return c.Typing(conn, req)
	case EventChangeUserFeeling:
		var req FeelingRequest
		if err := c.decode(env, &req); err != nil {
			return err
		}
		return c.ChangeFeeling(conn, req)
	case EventJoinRandomChat:
		return c.JoinRandomChat(conn)
	case EventLeaveRandomChat:
		return c.LeaveRandomChat(conn)
	case EventPrivateMessage:
		var req PrivateMessageRequest
		if err := c.decode(env, &req); err != nil {
			return err
		}
		return c.PrivateMessage(conn, req)
	case EventOffer, EventAnswer, EventICECandidate:
		return c.Signal(conn, env.Event, env.Data)
	default:
		return fmt.Errorf("%q: %w", env.Event, ErrUnknownEvent)
	}
}

func (c *Controller) decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: %w: missing data", env.Event, ErrMalformedRequest)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", env.Event, ErrMalformedRequest, err)
	}
	return nil
}

func (c *Controller) check(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return nil
}

func (c *Controller) session(conn ConnID) (Session, error) {
	s, err := c.registry.Get(conn)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", conn, ErrNotRegistered)
	}
	return s, nil
}

func (c *Controller) system(text string) SystemMessage {
	return SystemMessage{Text: text, Timestamp: Timestamp(c.now()), IsSystem: true}
}

// JoinRoom records the caller's identity and adds it to a public room.
func (c *Controller) JoinRoom(conn ConnID, req JoinRoomRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	if c.directory.IsPrivate(req.Room) {
		return fmt.Errorf("join %s: private room: %w", req.Room, ErrMalformedRequest)
	}
	if err := c.registry.SetSession(conn, req.Username, req.Room, req.Feeling); err != nil {
		return err
	}
	c.directory.Join(req.Room, conn)

	c.broadcaster.ToRoom(req.Room, EventSystemMessage, c.system(req.Username+" joined the room"))
	c.broadcaster.ToAll(EventActiveRooms, c.directory.PublicRoomIDs())
	c.broadcaster.ToRoom(req.Room, EventActiveUsers, c.broadcaster.ActiveUsers(req.Room))
	c.log.Info("Joined room", "conn", conn, "username", req.Username, "room", req.Room)
	return nil
}

// LeaveRoom takes the caller out of one room. Leaving a room the caller is
// not in does nothing. Leaving a matched room ends the pairing.
func (c *Controller) LeaveRoom(conn ConnID, req LeaveRoomRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.session(conn)
	if err != nil {
		return err
	}
	private := c.directory.IsPrivate(req.Room)
	if !c.directory.Leave(req.Room, conn) {
		return nil
	}
	if s.Room == req.Room {
		if err := c.registry.SetRoom(conn, ""); err != nil {
			return err
		}
	}
	if private {
		c.matchmaker.Unpair(conn)
	}

	c.broadcaster.ToRoom(req.Room, EventSystemMessage, c.system(s.Username+" left the room"))
	c.broadcaster.ToRoom(req.Room, EventActiveUsers, c.broadcaster.ActiveUsers(req.Room))
	c.broadcaster.ToAll(EventActiveRooms, c.directory.PublicRoomIDs())
	c.log.Info("Left room", "conn", conn, "room", req.Room)
	return nil
}

// SendMessage stamps msg with the server time and sends it to its room.
func (c *Controller) SendMessage(conn ConnID, msg ChatMessage) error {
	if err := c.check(msg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	if c.strict && !c.directory.Contains(msg.Room, conn) {
		return fmt.Errorf("message to %s: sender is not a member: %w", msg.Room, ErrMalformedRequest)
	}
	msg.Timestamp = Timestamp(c.now())
	n := c.broadcaster.ToRoom(msg.Room, EventMessage, msg)
	c.log.Debug("Message sent", "conn", conn, "room", msg.Room, "recipients", n)
	return nil
}

// Typing tells the rest of the room that the caller is typing.
func (c *Controller) Typing(conn ConnID, req TypingRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	c.notifier.Typing(req.Room, req.Username, conn)
	return nil
}

// ChangeFeeling updates the caller's mood and tells the room.
func (c *Controller) ChangeFeeling(conn ConnID, req FeelingRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	return c.notifier.MoodChanged(conn, req.Room, req.Username, req.Feeling)
}

// JoinRandomChat queues the caller for a stranger.
func (c *Controller) JoinRandomChat(conn ConnID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	c.matchmaker.Enqueue(conn)
	return nil
}

// LeaveRandomChat stops the caller waiting for a stranger.
func (c *Controller) LeaveRandomChat(conn ConnID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	c.matchmaker.Cancel(conn)
	return nil
}

// PrivateMessage sends text to a matched room.
func (c *Controller) PrivateMessage(conn ConnID, req PrivateMessageRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	if c.strict && !c.directory.Contains(req.RoomID, conn) {
		return fmt.Errorf("private message to %s: sender is not a member: %w", req.RoomID, ErrMalformedRequest)
	}
	c.broadcaster.ToRoom(req.RoomID, EventPrivateMessage, PrivateMessage{
		Sender:    conn,
		Text:      req.Text,
		Timestamp: Timestamp(c.now()),
	})
	return nil
}

// Signal hands a WebRTC negotiation event to the relay.
func (c *Controller) Signal(conn ConnID, event string, data json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.session(conn); err != nil {
		return err
	}
	if c.relay == nil {
		return fmt.Errorf("%q: no relay: %w", event, ErrUnknownEvent)
	}
	return c.relay.Forward(conn, event, data)
}
