// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room and lobby sockets.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Auth token missing, invalid or expired.
	InvalidRoomCodeError  = 3003 // Room code in the URL is malformed or the room does not exist.
	NotAboardError        = 3004 // Authenticated player holds no seat in the room.
	RoomClosedError       = 3005 // Room was deleted or finished while connected.
)
