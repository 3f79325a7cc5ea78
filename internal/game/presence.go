// internal/game/presence.go
package game

import (
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/store"
)

// RosterListener receives roster changes of one room.
type RosterListener interface {
	PlayerJoined(id string, p models.Player)
	PlayerChanged(id string, p models.Player)
	PlayerLeft(id string, p models.Player)
}

// TrackRoster subscribes to the roster of a room and forwards child-level events to l.
// Players already aboard when tracking starts are not reported as joins, and selfID's own
// join and leave are suppressed. Changes are reported for everyone, including selfID.
func TrackRoster(s store.Store, code, selfID string, l RosterListener, onError func(error)) (func(), error) {
	decode := func(snap store.Snapshot) (models.Player, bool) {
		var p models.Player
		if err := snap.Decode(&p); err != nil {
			if onError != nil {
				onError(err)
			}
			return p, false
		}
		return p, true
	}

	return s.SubscribeChildren(RoomPath(code)+"/players", store.ChildListener{
		SkipInitial: true,
		Added: func(snap store.Snapshot) {
			if snap.Key == selfID {
				return
			}
			if p, ok := decode(snap); ok {
				l.PlayerJoined(snap.Key, p)
			}
		},
		Changed: func(snap store.Snapshot) {
			if p, ok := decode(snap); ok {
				l.PlayerChanged(snap.Key, p)
			}
		},
		Removed: func(snap store.Snapshot) {
			if snap.Key == selfID {
				return
			}
			if p, ok := decode(snap); ok {
				l.PlayerLeft(snap.Key, p)
			}
		},
	}, onError)
}
