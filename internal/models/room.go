// internal/models/room.go
package models

import "sort"

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// RoomCapacity is the fixed number of crew slots in a room.
const RoomCapacity = 6

// Room is the shared document stored under rooms/<code>.
//
// CurrentPlayers always equals len(Players) after a join or leave commits.
// Version is bumped by every server-side write and lets clients detect stale intents.
type Room struct {
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	CreatedAt      int64              `json:"createdAt"`
	Captain        string             `json:"captain"`
	CaptainName    string             `json:"captainName"`
	CaptainAvatar  string             `json:"captainAvatar,omitempty"`
	CurrentPlayers int                `json:"currentPlayers"`
	MaxPlayers     int                `json:"maxPlayers"`
	Status         RoomStatus         `json:"status"`
	Players        map[string]Player  `json:"players,omitempty"`
	Submarine      Vessel             `json:"submarine"`
	Messages       map[string]Message `json:"messages,omitempty"`
	Version        int64              `json:"version"`
}

// NewRoom builds a waiting room with the owner aboard as captain.
func NewRoom(code, name, ownerID, ownerName, ownerAvatar string, now int64) *Room {
	return &Room{
		Code:           code,
		Name:           name,
		CreatedAt:      now,
		Captain:        ownerID,
		CaptainName:    ownerName,
		CaptainAvatar:  ownerAvatar,
		CurrentPlayers: 1,
		MaxPlayers:     RoomCapacity,
		Status:         StatusWaiting,
		Players: map[string]Player{
			ownerID: {
				Name:     ownerName,
				Avatar:   ownerAvatar,
				Role:     RoleFor(0),
				JoinedAt: now,
			},
		},
		Submarine: NewVessel(),
		Version:   1,
	}
}

// Open reports whether the room should show up in the lobby list.
func (r *Room) Open() bool {
	return r.Status != StatusFinished && r.CurrentPlayers < r.MaxPlayers
}

// SortedMessages returns the chat log ordered by timestamp, then key.
func (r *Room) SortedMessages() []Message {
	out := make([]Message, 0, len(r.Messages))
	for key, m := range r.Messages {
		m.Key = key
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// RoomSummary is the lobby-list view of a room.
type RoomSummary struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	CaptainName    string     `json:"captainName"`
	CurrentPlayers int        `json:"currentPlayers"`
	MaxPlayers     int        `json:"maxPlayers"`
	Status         RoomStatus `json:"status"`
	CreatedAt      int64      `json:"createdAt"`
}

// Summary projects the room into its lobby-list view.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Code:           r.Code,
		Name:           r.Name,
		CaptainName:    r.CaptainName,
		CurrentPlayers: r.CurrentPlayers,
		MaxPlayers:     r.MaxPlayers,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
}
