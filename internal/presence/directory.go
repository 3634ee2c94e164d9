package presence

import (
	"sync"

	"github.com/samber/lo"
)

type roomEntry struct {
	members []ConnID
	private bool
}

// Directory maps rooms to their members. A room is present exactly as long
// as it has at least one member.
type Directory struct {
	mu    sync.RWMutex
	rooms map[RoomID]*roomEntry
	order []RoomID
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[RoomID]*roomEntry)}
}

// Join adds conn to room, creating the room for its first member. It
// reports whether conn was newly added.
func (d *Directory) Join(room RoomID, conn ConnID) bool {
	return d.join(room, conn, false)
}

// JoinPrivate is Join for rooms that must stay out of public listings.
func (d *Directory) JoinPrivate(room RoomID, conn ConnID) bool {
	return d.join(room, conn, true)
}

func (d *Directory) join(room RoomID, conn ConnID, private bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.rooms[room]
	if !ok {
		entry = &roomEntry{private: private}
		d.rooms[room] = entry
		d.order = append(d.order, room)
	}
	if lo.Contains(entry.members, conn) {
		return false
	}
	entry.members = append(entry.members, conn)
	return true
}

// Leave removes conn from room and deletes the room once it is empty. It
// reports whether conn was a member.
func (d *Directory) Leave(room RoomID, conn ConnID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leaveLocked(room, conn)
}

func (d *Directory) leaveLocked(room RoomID, conn ConnID) bool {
	entry, ok := d.rooms[room]
	if !ok || !lo.Contains(entry.members, conn) {
		return false
	}
	entry.members = lo.Without(entry.members, conn)
	if len(entry.members) == 0 {
		delete(d.rooms, room)
		d.order = lo.Without(d.order, room)
	}
	return true
}

// LeaveAll removes conn from every room it belongs to and returns those
// rooms in listing order.
func (d *Directory) LeaveAll(conn ConnID) []RoomID {
	d.mu.Lock()
	defer d.mu.Unlock()

	joined := lo.Filter(d.order, func(room RoomID, _ int) bool {
		return lo.Contains(d.rooms[room].members, conn)
	})
	for _, room := range joined {
		d.leaveLocked(room, conn)
	}
	return joined
}

// Members returns a snapshot of room's members in join order. An unknown
// room yields an empty slice.
func (d *Directory) Members(room RoomID) []ConnID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.rooms[room]
	if !ok {
		return []ConnID{}
	}
	return append([]ConnID(nil), entry.members...)
}

// Contains reports whether conn is a member of room.
func (d *Directory) Contains(room RoomID, conn ConnID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.rooms[room]
	return ok && lo.Contains(entry.members, conn)
}

// IsPrivate reports whether room exists and was created by JoinPrivate.
func (d *Directory) IsPrivate(room RoomID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.rooms[room]
	return ok && entry.private
}

// ActiveRoomIDs returns every non-empty room in creation order.
func (d *Directory) ActiveRoomIDs() []RoomID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]RoomID{}, d.order...)
}

// PublicRoomIDs returns ActiveRoomIDs without private rooms.
func (d *Directory) PublicRoomIDs() []RoomID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return lo.Filter(d.order, func(room RoomID, _ int) bool {
		return !d.rooms[room].private
	})
}
