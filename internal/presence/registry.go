package presence

import (
	"fmt"
	"sync"

	"github.com/samber/lo"
)

// Registry maps live connections to their session metadata.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ConnID]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ConnID]*Session)}
}

// Register creates a default session for conn. Registering an id twice
// resets its session.
func (r *Registry) Register(conn ConnID, clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn] = &Session{
		ConnID:   conn,
		ClientID: clientID,
		Username: DefaultUsername,
		Mood:     MoodNeutral,
	}
}

// SetSession updates the name, current room and, when mood is non-empty,
// the mood of a registered connection.
func (r *Registry) SetSession(conn ConnID, username string, room RoomID, mood Mood) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return fmt.Errorf("set session %s: %w", conn, ErrNotRegistered)
	}
	if username == "" {
		username = DefaultUsername
	}
	s.Username = username
	s.Room = room
	if mood != "" {
		s.Mood = mood
	}
	return nil
}

// SetRoom changes only the current room.
func (r *Registry) SetRoom(conn ConnID, room RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return fmt.Errorf("set room %s: %w", conn, ErrNotRegistered)
	}
	s.Room = room
	return nil
}

// UpdateMood changes only the mood.
func (r *Registry) UpdateMood(conn ConnID, mood Mood) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn]
	if !ok {
		return fmt.Errorf("update mood %s: %w", conn, ErrNotRegistered)
	}
	s.Mood = mood
	return nil
}

// Get returns a copy of the session for conn.
func (r *Registry) Get(conn ConnID) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[conn]
	if !ok {
		return Session{}, fmt.Errorf("get %s: %w", conn, ErrNotFound)
	}
	return *s, nil
}

// Has reports whether conn is registered.
func (r *Registry) Has(conn ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[conn]
	return ok
}

// Remove deletes the session. Removing an unknown id is a no-op so duplicate
// disconnect signals are harmless.
func (r *Registry) Remove(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, conn)
}

// IDs returns a snapshot of every registered connection.
func (r *Registry) IDs() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
