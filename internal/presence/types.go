package presence

import (
	"encoding/json"
	"time"
)

// ConnID identifies one transport connection for its whole lifetime.
type ConnID string

// RoomID identifies a room. Named rooms use caller-supplied ids, matched
// rooms use ids minted by the Matchmaker.
type RoomID string

// Mood is the status a connection advertises to its room.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
)

// DefaultUsername is shown for connections that never picked a name.
const DefaultUsername = "Anonymous"

// Valid reports whether m belongs to the closed mood set.
func (m Mood) Valid() bool {
	switch m {
	case MoodHappy, MoodNeutral, MoodSad:
		return true
	}
	return false
}

// Session is the metadata kept for a registered connection.
type Session struct {
	ConnID   ConnID
	ClientID string
	Username string
	Room     RoomID
	Mood     Mood
}

// Deliverer queues an encoded frame on a single connection. Implementations
// must not block on the connection's I/O.
type Deliverer interface {
	Deliver(conn ConnID, frame []byte) error
}

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventMessage           = "message"
	EventTyping            = "typing"
	EventChangeUserFeeling = "change_user_feeling"
	EventJoinRandomChat    = "join_random_chat"
	EventLeaveRandomChat   = "leave_random_chat"
	EventPrivateMessage    = "private_message"
	EventOffer             = "offer"
	EventAnswer            = "answer"
	EventICECandidate      = "ice-candidate"
)

// Outbound event names that are not also inbound names.
const (
	EventActiveRooms          = "active_rooms"
	EventActiveUsers          = "active_users"
	EventSystemMessage        = "system_message"
	EventUserTyping           = "user_typing"
	EventUserFeelingChanged   = "user_feeling_changed"
	EventMatchFound           = "match_found"
	EventStrangerDisconnected = "stranger_disconnected"
)

// JoinRoomRequest is the payload of join_room.
type JoinRoomRequest struct {
	Username string `json:"username" validate:"required"`
	Room     RoomID `json:"room" validate:"required"`
	Feeling  Mood   `json:"feeling,omitempty" validate:"omitempty,oneof=happy neutral sad"`
}

// LeaveRoomRequest is the payload of leave_room.
type LeaveRoomRequest struct {
	Room RoomID `json:"room" validate:"required"`
}

// ChatMessage is the payload of an inbound message. The outbound message
// carries the same fields plus the server timestamp. Empty text is relayed
// as is.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Room      RoomID `json:"room" validate:"required"`
	Feeling   Mood   `json:"feeling,omitempty" validate:"omitempty,oneof=happy neutral sad"`
	ReplyTo   any    `json:"replyTo,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// TypingRequest is the payload of typing.
type TypingRequest struct {
	Username string `json:"username" validate:"required"`
	Room     RoomID `json:"room" validate:"required"`
}

// FeelingRequest is the payload of change_user_feeling.
type FeelingRequest struct {
	Username string `json:"username" validate:"required"`
	Room     RoomID `json:"room" validate:"required"`
	Feeling  Mood   `json:"feeling" validate:"required,oneof=happy neutral sad"`
}

// PrivateMessageRequest is the payload of an inbound private_message.
type PrivateMessageRequest struct {
	RoomID RoomID `json:"roomId" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

// PrivateMessage is the outbound private_message.
type PrivateMessage struct {
	Sender    ConnID `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// SystemMessage is a coordinator-authored notice.
type SystemMessage struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	IsSystem  bool   `json:"isSystem"`
}

// UserPresence is one entry of an active_users listing.
type UserPresence struct {
	Username string `json:"username"`
	Room     RoomID `json:"room"`
	Feeling  Mood   `json:"feeling"`
}

// FeelingChanged is the payload of user_feeling_changed.
type FeelingChanged struct {
	Username string `json:"username"`
	Feeling  Mood   `json:"feeling"`
}

// MatchFound is sent to both sides of a new pairing.
type MatchFound struct {
	RoomID  RoomID `json:"roomId"`
	Partner ConnID `json:"partner"`
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t the way every outbound timestamp is written.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func encode(event string, payload any) ([]byte, error) {
	env := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: payload}
	return json.Marshal(env)
}
