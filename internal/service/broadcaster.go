package service

import "strings"

// Shared room names. Every session additionally has a private room, see SessionRoom.
const (
	ObserverRoom = "map-updates"
	OperatorRoom = "emergency-services"
)

const sessionRoomPrefix = "emergency-session-"

// SessionRoom is the private room for one emergency session
func SessionRoom(sessionID string) string {
	return sessionRoomPrefix + sessionID
}

// SessionIDFromRoom is the inverse of SessionRoom; ok is false for shared rooms
func SessionIDFromRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, sessionRoomPrefix)
	return id, ok && id != ""
}

// Broadcaster interface for WebSocket fan-out (avoids import cycle).
// EmitToRooms delivers once to every distinct member of rooms, skipping exceptConnID.
type Broadcaster interface {
	EmitToRooms(rooms []string, exceptConnID string, msgType string, payload interface{})
	RoomSize(room string) int
}

// Replier sends a direct response to the connection that raised an event
type Replier interface {
	ConnID() string
	Reply(msgType string, payload interface{})
}
