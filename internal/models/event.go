package models

// RoomEventKind names a recorded change to a room.
type RoomEventKind string

const (
	EventRoomCreated    RoomEventKind = "room_created"
	EventRoomDeleted    RoomEventKind = "room_deleted"
	EventRoomFinished   RoomEventKind = "room_finished"
	EventPlayerJoined   RoomEventKind = "player_joined"
	EventPlayerLeft     RoomEventKind = "player_left"
	EventCaptainChanged RoomEventKind = "captain_changed"
	EventControl        RoomEventKind = "control"
	EventChat           RoomEventKind = "chat"
)

// RoomEvent holds the minimal info the historian needs to persist one change.
type RoomEvent struct {
	RoomCode  string                 `json:"room_code"`
	Kind      RoomEventKind          `json:"kind"`
	ActorID   string                 `json:"actor_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
