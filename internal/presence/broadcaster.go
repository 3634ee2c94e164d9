package presence

import (
	"log/slog"

	"github.com/samber/lo"
)

// Broadcaster fans encoded events out to connections. It only reads the
// Registry and Directory.
type Broadcaster struct {
	registry  *Registry
	directory *Directory
	out       Deliverer
	log       *slog.Logger
}

// NewBroadcaster wires a Broadcaster to the registries it reads and the
// transport it writes to.
func NewBroadcaster(registry *Registry, directory *Directory, out Deliverer, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, directory: directory, out: out, log: log}
}

// ToRoom delivers an event to every registered member of room and returns
// how many connections accepted it.
func (b *Broadcaster) ToRoom(room RoomID, event string, payload any) int {
	return b.ToRoomExcept(room, "", event, payload)
}

// ToRoomExcept is ToRoom without the exclude connection.
func (b *Broadcaster) ToRoomExcept(room RoomID, exclude ConnID, event string, payload any) int {
	members := b.directory.Members(room)
	targets := lo.Filter(members, func(conn ConnID, _ int) bool {
		return conn != exclude
	})
	return b.fanout(targets, event, payload)
}

// ToAll delivers an event to every registered connection.
func (b *Broadcaster) ToAll(event string, payload any) int {
	return b.fanout(b.registry.IDs(), event, payload)
}

// ToOne delivers an event to a single connection.
func (b *Broadcaster) ToOne(conn ConnID, event string, payload any) bool {
	return b.fanout([]ConnID{conn}, event, payload) == 1
}

// ActiveUsers lists the presence of room's registered members.
func (b *Broadcaster) ActiveUsers(room RoomID) []UserPresence {
	users := make([]UserPresence, 0)
	for _, conn := range b.directory.Members(room) {
		s, err := b.registry.Get(conn)
		if err != nil {
			continue
		}
		users = append(users, UserPresence{Username: s.Username, Room: room, Feeling: s.Mood})
	}
	return users
}

func (b *Broadcaster) fanout(targets []ConnID, event string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := encode(event, payload)
	if err != nil {
		b.log.Error("Failed to encode event", "event", event, "error", err)
		return 0
	}

	delivered := 0
	for _, conn := range targets {
		if !b.registry.Has(conn) {
			continue
		}
		if err := b.out.Deliver(conn, frame); err != nil {
			b.log.Debug("Dropped event", "event", event, "conn", conn, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
