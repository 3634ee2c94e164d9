package presence

// Notifier emits transient typing and mood signals. It keeps no state of its
// own; clearing a typing indicator is left to the receiving client.
type Notifier struct {
	registry    *Registry
	broadcaster *Broadcaster
}

// NewNotifier returns a Notifier emitting through b.
func NewNotifier(registry *Registry, b *Broadcaster) *Notifier {
	return &Notifier{registry: registry, broadcaster: b}
}

// Typing tells everyone in room except the typist that username is typing.
func (n *Notifier) Typing(room RoomID, username string, exclude ConnID) int {
	return n.broadcaster.ToRoomExcept(room, exclude, EventUserTyping, username)
}

// MoodChanged records the new mood for conn, announces it to room and
// refreshes the room's member listing.
func (n *Notifier) MoodChanged(conn ConnID, room RoomID, username string, mood Mood) error {
	if err := n.registry.UpdateMood(conn, mood); err != nil {
		return err
	}
	n.broadcaster.ToRoom(room, EventUserFeelingChanged, FeelingChanged{Username: username, Feeling: mood})
	n.broadcaster.ToRoom(room, EventActiveUsers, n.broadcaster.ActiveUsers(room))
	return nil
}
