// internal/game/registry.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

// RoomsPath is the store collection holding every room document.
const RoomsPath = "rooms"

// MaxRoomNameLength is the longest room name accepted, in runes.
const MaxRoomNameLength = 40

// DefaultMaxCodeAttempts bounds how many colliding codes CreateRoom tolerates.
const DefaultMaxCodeAttempts = 10

// RoomPath returns the store path of the room with the given code.
func RoomPath(code string) string {
	return RoomsPath + "/" + code
}

// Profile is the public face of a player: what others see in the roster and chat.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// JoinResult describes the seat a player holds after JoinRoom.
type JoinResult struct {
	Code     string      `json:"code"`
	Role     models.Role `json:"role"`
	Rejoined bool        `json:"rejoined"`
}

// Registry creates, joins, lists and tears down rooms in the document store.
// Every mutation runs as a store transaction, so concurrent joins and leaves never lose a count.
type Registry struct {
	Store    store.Store
	Logger   *logrus.Logger
	Recorder EventRecorder
	Metrics  *monitoring.Metrics

	// GenerateCode draws a candidate room code. Defaults to RandomCode.
	GenerateCode func() (string, error)
	// MaxCodeAttempts caps the collision retries of CreateRoom.
	MaxCodeAttempts int
	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewRegistry returns a Registry with default code generation and clock.
func NewRegistry(s store.Store, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		Store:           s,
		Logger:          logger,
		Recorder:        nopRecorder{},
		GenerateCode:    RandomCode,
		MaxCodeAttempts: DefaultMaxCodeAttempts,
		Now:             time.Now,
	}
}

func (r *Registry) now() int64 {
	if r.Now == nil {
		return time.Now().UnixMilli()
	}
	return r.Now().UnixMilli()
}

func (r *Registry) record(ctx context.Context, code string, kind models.RoomEventKind, actor string, payload map[string]interface{}) {
	if r.Recorder == nil {
		return
	}
	ev := models.RoomEvent{
		RoomCode:  code,
		Kind:      kind,
		ActorID:   actor,
		Payload:   payload,
		Timestamp: r.now(),
	}
	if err := r.Recorder.RecordRoomEvent(ctx, ev); err != nil {
		r.Logger.WithError(err).WithField("room", code).Warn("failed to record room event")
	}
}

// decodeRoom reads a room out of a snapshot, returning ErrNotFound when it is absent.
func decodeRoom(snap store.Snapshot) (*models.Room, error) {
	if !snap.Exists {
		return nil, ErrNotFound
	}
	var room models.Room
	if err := snap.Decode(&room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", snap.Key, err)
	}
	if room.Code == "" {
		room.Code = snap.Key
	}
	return &room, nil
}

// ValidateRoomName trims the name and checks it is non-empty and short enough.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: room name is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return "", fmt.Errorf("%w: room name is longer than %d characters", ErrInvalidInput, MaxRoomNameLength)
	}
	return name, nil
}

func validatePlayer(playerID string, profile Profile) (Profile, error) {
	if strings.TrimSpace(playerID) == "" {
		return profile, fmt.Errorf("%w: player id is required", ErrInvalidInput)
	}
	profile.Name = strings.TrimSpace(profile.Name)
	if profile.Name == "" {
		profile.Name = "Sailor"
	}
	return profile, nil
}

// CreateRoom allocates a fresh code and stores a waiting room with the owner aboard as captain.
// A colliding code is redrawn up to MaxCodeAttempts times before ErrCodeSpaceExhausted.
func (r *Registry) CreateRoom(ctx context.Context, name, ownerID string, owner Profile) (string, error) {
	name, err := ValidateRoomName(name)
	if err != nil {
		return "", err
	}
	owner, err = validatePlayer(ownerID, owner)
	if err != nil {
		return "", err
	}

	gen := r.GenerateCode
	if gen == nil {
		gen = RandomCode
	}
	attempts := r.MaxCodeAttempts
	if attempts <= 0 {
		attempts = DefaultMaxCodeAttempts
	}

	for i := 0; i < attempts; i++ {
		code, err := gen()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}

		created := false
		_, err = r.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
			if cur.Exists {
				created = false
				return store.NoChange, nil
			}
			created = true
			return models.NewRoom(code, name, ownerID, owner.Name, owner.Avatar, r.now()), nil
		})
		if err != nil {
			return "", fmt.Errorf("create room %s: %w", code, err)
		}
		if !created {
			r.Logger.WithField("code", code).Debug("room code collision, drawing another")
			continue
		}

		r.Logger.WithFields(logrus.Fields{"room": code, "owner": ownerID, "name": name}).Info("room created")
		r.Metrics.RoomCreated()
		r.record(ctx, code, models.EventRoomCreated, ownerID, map[string]interface{}{"name": name})
		return code, nil
	}
	return "", fmt.Errorf("%w: %d attempts", ErrCodeSpaceExhausted, attempts)
}

// JoinRoom seats a player in the room. Rejoining returns the existing role without changing occupancy.
func (r *Registry) JoinRoom(ctx context.Context, code, playerID string, profile Profile) (JoinResult, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return JoinResult{}, err
	}
	profile, err = validatePlayer(playerID, profile)
	if err != nil {
		return JoinResult{}, err
	}

	var res JoinResult
	_, err = r.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		res = JoinResult{Code: code}
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if p, ok := room.Players[playerID]; ok {
			res.Role = p.Role
			res.Rejoined = true
			return store.NoChange, nil
		}
		if room.Status == models.StatusFinished {
			return nil, ErrRoomClosed
		}
		if len(room.Players) >= room.MaxPlayers {
			return nil, ErrRoomFull
		}

		if room.Players == nil {
			room.Players = make(map[string]models.Player)
		}
		held := make(map[models.Role]bool, len(room.Players))
		for _, p := range room.Players {
			held[p.Role] = true
		}
		res.Role = models.NextRole(held)
		room.Players[playerID] = models.Player{
			Name:     profile.Name,
			Avatar:   profile.Avatar,
			Role:     res.Role,
			JoinedAt: r.now(),
		}
		room.CurrentPlayers = len(room.Players)
		room.Status = models.StatusActive
		room.Version++
		return room, nil
	})
	switch {
	case errors.Is(err, ErrRoomFull):
		r.Metrics.Join("full")
		return JoinResult{}, err
	case err != nil:
		r.Metrics.Join("error")
		return JoinResult{}, err
	case res.Rejoined:
		r.Metrics.Join("rejoined")
		return res, nil
	}

	r.Logger.WithFields(logrus.Fields{"room": code, "player": playerID, "role": res.Role}).Info("player joined room")
	r.Metrics.Join("joined")
	r.record(ctx, code, models.EventPlayerJoined, playerID, map[string]interface{}{"role": string(res.Role)})
	return res, nil
}

// LeaveRoom removes the player from the roster and deletes the room once it is empty.
// Leaving a room the player is not in is a no-op.
func (r *Registry) LeaveRoom(ctx context.Context, code, playerID string) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}

	left, deleted := false, false
	promoted := ""
	_, err = r.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		left, deleted, promoted = false, false, ""
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if _, ok := room.Players[playerID]; !ok {
			return store.NoChange, nil
		}
		left = true
		delete(room.Players, playerID)
		if len(room.Players) == 0 {
			deleted = true
			return nil, nil
		}
		if room.Captain == playerID {
			promoted = promoteCaptain(room)
		}
		room.CurrentPlayers = len(room.Players)
		room.Version++
		return room, nil
	})
	if err != nil {
		return err
	}
	if !left {
		return nil
	}

	r.Logger.WithFields(logrus.Fields{"room": code, "player": playerID}).Info("player left room")
	r.record(ctx, code, models.EventPlayerLeft, playerID, nil)
	if promoted != "" {
		r.Logger.WithFields(logrus.Fields{"room": code, "captain": promoted}).Info("captain handed over")
		r.record(ctx, code, models.EventCaptainChanged, promoted, map[string]interface{}{"previous": playerID})
	}
	if deleted {
		r.Logger.WithField("room", code).Info("room empty, deleted")
		r.Metrics.RoomDeleted()
		r.record(ctx, code, models.EventRoomDeleted, playerID, nil)
	}
	return nil
}

// promoteCaptain hands ownership and the Captain role to the longest-serving player.
// Ties on JoinedAt go to the lowest player id.
func promoteCaptain(room *models.Room) string {
	next := ""
	for id, p := range room.Players {
		if next == "" {
			next = id
			continue
		}
		cur := room.Players[next]
		if p.JoinedAt < cur.JoinedAt || (p.JoinedAt == cur.JoinedAt && id < next) {
			next = id
		}
	}
	if next == "" {
		return ""
	}
	p := room.Players[next]
	p.Role = models.RoleCaptain
	room.Players[next] = p
	room.Captain = next
	room.CaptainName = p.Name
	room.CaptainAvatar = p.Avatar
	return next
}

// GetRoom reads the current room document once.
func (r *Registry) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	snap, err := r.Store.Get(ctx, RoomPath(code))
	if err != nil {
		return nil, err
	}
	return decodeRoom(snap)
}

// SetOnline flips the presence flag of a roster entry without removing it.
func (r *Registry) SetOnline(ctx context.Context, code, playerID string, online bool) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	_, err = r.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		p, ok := room.Players[playerID]
		if !ok || p.Online == online {
			return store.NoChange, nil
		}
		p.Online = online
		room.Players[playerID] = p
		room.Version++
		return room, nil
	})
	return err
}

// FinishRoom marks the room finished, which hides it from the open list and refuses new joins.
// Only the captain may finish a room.
func (r *Registry) FinishRoom(ctx context.Context, code, playerID string) error {
	code, err := NormalizeCode(code)
	if err != nil {
		return err
	}
	changed := false
	_, err = r.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		changed = false
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		if room.Captain != playerID {
			return nil, fmt.Errorf("%w: only the captain can end the mission", ErrForbidden)
		}
		if room.Status == models.StatusFinished {
			return store.NoChange, nil
		}
		changed = true
		room.Status = models.StatusFinished
		room.Version++
		return room, nil
	})
	if err != nil || !changed {
		return err
	}
	r.Logger.WithField("room", code).Info("room finished")
	r.record(ctx, code, models.EventRoomFinished, playerID, nil)
	return nil
}

// openRooms filters a rooms collection snapshot down to joinable rooms, newest first.
func openRooms(snap store.Snapshot) []models.RoomSummary {
	out := []models.RoomSummary{}
	for _, child := range snap.Children() {
		room, err := decodeRoom(child)
		if err != nil {
			continue
		}
		if room.Open() {
			out = append(out, room.Summary())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// ListOpenRooms returns the joinable rooms once.
func (r *Registry) ListOpenRooms(ctx context.Context) ([]models.RoomSummary, error) {
	snap, err := r.Store.Get(ctx, RoomsPath)
	if err != nil {
		return nil, err
	}
	return openRooms(snap), nil
}

// WatchOpenRooms streams a fresh list of joinable rooms on every change to any room.
// Only the latest list is kept for a slow reader. The channel closes when ctx is done.
func (r *Registry) WatchOpenRooms(ctx context.Context) (<-chan []models.RoomSummary, error) {
	out := make(chan []models.RoomSummary, 1)
	var (
		mu     sync.Mutex
		closed bool
	)

	unsubscribe, err := r.Store.Subscribe(RoomsPath, func(snap store.Snapshot) {
		list := openRooms(snap)
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		// drop an unread list in favour of the newer one
		select {
		case <-out:
		default:
		}
		out <- list
	}, func(err error) {
		r.Logger.WithError(err).Warn("open room subscription failed")
	})
	if err != nil {
		return nil, err
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
