// internal/game/chat.go
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

// MaxMessageLength is the longest chat message accepted, in runes.
const MaxMessageLength = 500

// Chat is the append-only message log of each room.
type Chat struct {
	Store    store.Store
	Logger   *logrus.Logger
	Recorder EventRecorder
	Metrics  *monitoring.Metrics
	Now      func() time.Time

	// Retention caps the log at the newest N messages; zero keeps everything.
	Retention int
}

// NewChat returns an unbounded chat log bound to s.
func NewChat(s store.Store, logger *logrus.Logger) *Chat {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Chat{Store: s, Logger: logger, Recorder: nopRecorder{}, Now: time.Now}
}

// Send appends a message under a fresh time-ordered key. Timestamps within a room strictly
// increase even when two messages land in the same millisecond.
func (c *Chat) Send(ctx context.Context, code, senderID, senderName string, role models.Role, text string) (models.Message, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return models.Message{}, err
	}
	text, err = ValidateMessage(text)
	if err != nil {
		return models.Message{}, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return models.Message{}, fmt.Errorf("generate message key: %w", err)
	}

	msg := models.Message{
		Key:        id.String(),
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
		SenderRole: role,
	}
	_, err = c.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}

		msg.Timestamp = c.now()
		for _, m := range room.Messages {
			if m.Timestamp >= msg.Timestamp {
				msg.Timestamp = m.Timestamp + 1
			}
		}
		if room.Messages == nil {
			room.Messages = make(map[string]models.Message)
		}
		room.Messages[msg.Key] = msg
		c.trim(room)
		room.Version++
		return room, nil
	})
	if err != nil {
		return models.Message{}, err
	}

	c.Metrics.ChatMessage()
	if c.Recorder != nil {
		ev := models.RoomEvent{
			RoomCode:  code,
			Kind:      models.EventChat,
			ActorID:   senderID,
			Payload:   map[string]interface{}{"key": msg.Key, "text": msg.Text},
			Timestamp: msg.Timestamp,
		}
		if err := c.Recorder.RecordRoomEvent(ctx, ev); err != nil {
			c.Logger.WithError(err).WithField("room", code).Warn("failed to record chat event")
		}
	}
	return msg, nil
}

// trim drops the oldest messages beyond the retention limit.
func (c *Chat) trim(room *models.Room) {
	if c.Retention <= 0 || len(room.Messages) <= c.Retention {
		return
	}
	sorted := room.SortedMessages()
	for _, m := range sorted[:len(sorted)-c.Retention] {
		delete(room.Messages, m.Key)
	}
}

// History returns the room's messages ordered by timestamp.
func (c *Chat) History(ctx context.Context, code string) ([]models.Message, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	snap, err := c.Store.Get(ctx, RoomPath(code)+"/messages")
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		// an empty log and a missing room look the same at this path
		room, err := c.Store.Get(ctx, RoomPath(code))
		if err != nil {
			return nil, err
		}
		if !room.Exists {
			return nil, ErrNotFound
		}
		return []models.Message{}, nil
	}

	var messages map[string]models.Message
	if err := snap.Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", code, err)
	}
	room := models.Room{Messages: messages}
	return room.SortedMessages(), nil
}

func (c *Chat) now() int64 {
	if c.Now == nil {
		return time.Now().UnixMilli()
	}
	return c.Now().UnixMilli()
}
