// internal/game/events.go
package game

import (
	"context"

	"github.com/jason-s-yu/neocascade/internal/models"
)

// EventRecorder receives a copy of every committed room change, e.g. to queue it for the historian.
// Implementations must not block for long; errors are logged and otherwise ignored.
type EventRecorder interface {
	RecordRoomEvent(ctx context.Context, ev models.RoomEvent) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRoomEvent(context.Context, models.RoomEvent) error { return nil }
