package presence

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const strangerGreeting = "You are now connected to a stranger."

// Match is a pairing produced by the Matchmaker.
type Match struct {
	Room   RoomID
	First  ConnID
	Second ConnID
}

// Matchmaker pairs waiting connections two at a time, oldest first.
type Matchmaker struct {
	mu       sync.Mutex
	queue    []ConnID
	partners map[ConnID]ConnID

	registry    *Registry
	directory   *Directory
	broadcaster *Broadcaster
	newRoomID   func() RoomID
	now         func() time.Time
	log         *slog.Logger
}

// NewMatchmaker returns an empty Matchmaker.
func NewMatchmaker(registry *Registry, directory *Directory, b *Broadcaster, log *slog.Logger) *Matchmaker {
	return &Matchmaker{
		partners:    make(map[ConnID]ConnID),
		registry:    registry,
		directory:   directory,
		broadcaster: b,
		newRoomID:   func() RoomID { return RoomID("stranger_" + uuid.NewString()) },
		now:         time.Now,
		log:         log,
	}
}

// Enqueue adds conn to the waiting queue, unless it is already waiting or
// paired, and pairs whatever can be paired.
func (m *Matchmaker) Enqueue(conn ConnID) []Match {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, paired := m.partners[conn]; paired || lo.Contains(m.queue, conn) {
		return nil
	}
	m.queue = append(m.queue, conn)
	m.log.Debug("Waiting for a stranger", "conn", conn, "queue", len(m.queue))
	return m.tryMatchLocked()
}

// TryMatch pairs waiting connections until fewer than two remain.
func (m *Matchmaker) TryMatch() []Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tryMatchLocked()
}

func (m *Matchmaker) tryMatchLocked() []Match {
	var matches []Match
	for len(m.queue) >= 2 {
		first, second := m.queue[0], m.queue[1]
		m.queue = m.queue[2:]

		alive := lo.Filter([]ConnID{first, second}, func(conn ConnID, _ int) bool {
			return m.registry.Has(conn)
		})
		if len(alive) < 2 {
			// A side vanished without cleanup; survivors keep their place.
			m.queue = append(alive, m.queue...)
			continue
		}

		match := Match{Room: m.newRoomID(), First: first, Second: second}
		m.pairLocked(match)
		matches = append(matches, match)
	}
	return matches
}

func (m *Matchmaker) pairLocked(match Match) {
	m.partners[match.First] = match.Second
	m.partners[match.Second] = match.First

	for _, conn := range []ConnID{match.First, match.Second} {
		m.directory.JoinPrivate(match.Room, conn)
		if err := m.registry.SetRoom(conn, match.Room); err != nil {
			m.log.Warn("Matched connection lost its session", "conn", conn, "error", err)
		}
	}

	m.broadcaster.ToOne(match.First, EventMatchFound, MatchFound{RoomID: match.Room, Partner: match.Second})
	m.broadcaster.ToOne(match.Second, EventMatchFound, MatchFound{RoomID: match.Room, Partner: match.First})
	m.broadcaster.ToRoom(match.Room, EventSystemMessage, SystemMessage{
		Text:      strangerGreeting,
		Timestamp: Timestamp(m.now()),
		IsSystem:  true,
	})
	m.log.Info("Matched strangers", "first", match.First, "second", match.Second, "room", match.Room)
}

// Cancel removes conn from the waiting queue and reports whether it was
// waiting.
func (m *Matchmaker) Cancel(conn ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequeueLocked(conn)
}

func (m *Matchmaker) dequeueLocked(conn ConnID) bool {
	if !lo.Contains(m.queue, conn) {
		return false
	}
	m.queue = lo.Without(m.queue, conn)
	return true
}

// OnDisconnect forgets conn. If it was paired, its partner is told and the
// pairing is cleared in both directions; the partner is not re-queued.
func (m *Matchmaker) OnDisconnect(conn ConnID) (ConnID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dequeueLocked(conn) {
		m.log.Debug("Removed from waiting queue", "conn", conn)
	}
	return m.unpairLocked(conn)
}

// Unpair ends conn's current pairing, if any, and tells the partner.
func (m *Matchmaker) Unpair(conn ConnID) (ConnID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unpairLocked(conn)
}

func (m *Matchmaker) unpairLocked(conn ConnID) (ConnID, bool) {
	partner, ok := m.partners[conn]
	if !ok {
		return "", false
	}
	delete(m.partners, conn)
	delete(m.partners, partner)
	m.broadcaster.ToOne(partner, EventStrangerDisconnected, nil)
	m.log.Info("Removed match", "conn", conn, "partner", partner)
	return partner, true
}

// Partner returns the connection conn is paired with.
func (m *Matchmaker) Partner(conn ConnID) (ConnID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	partner, ok := m.partners[conn]
	return partner, ok
}

// Waiting returns a snapshot of the queue, oldest first.
func (m *Matchmaker) Waiting() []ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnID{}, m.queue...)
}
