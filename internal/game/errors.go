// internal/game/errors.go
package game

import "errors"

var (
	ErrNotFound           = errors.New("room not found")
	ErrRoomFull           = errors.New("room is full")
	ErrRoomClosed         = errors.New("room is finished")
	ErrInvalidInput       = errors.New("invalid input")
	ErrCodeSpaceExhausted = errors.New("no free room code after repeated attempts")
	ErrForbidden          = errors.New("role may not perform this action")
	ErrStaleVersion       = errors.New("room changed since the intent was issued")
)
