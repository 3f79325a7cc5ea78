package models

// Player is a roster entry inside a room document, keyed by the player's user id.
type Player struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Role     Role   `json:"role"`
	JoinedAt int64  `json:"joinedAt"`
	Online   bool   `json:"online"`
}
