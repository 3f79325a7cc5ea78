// internal/database/events.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/neocascade/internal/models"
)

// InsertRoomEvents writes a batch of room events in one transaction, upserting the
// rooms row each event belongs to and closing it on room_finished or room_deleted.
func InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	if len(events) == 0 {
		return nil
	}
	db, err := pool()
	if err != nil {
		return err
	}

	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, ev := range events {
			at := time.UnixMilli(ev.Timestamp)
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("encode payload of %s event: %w", ev.Kind, err)
			}

			batch.Queue(`
				INSERT INTO rooms (code, status, first_seen, last_event_at)
				VALUES ($1, 'active', $2, $2)
				ON CONFLICT (code)
				DO UPDATE SET last_event_at = GREATEST(rooms.last_event_at, EXCLUDED.last_event_at)`,
				ev.RoomCode, at)
			batch.Queue(`
				INSERT INTO room_events (room_code, kind, actor_id, payload, created_at)
				VALUES ($1, $2, $3, $4, $5)`,
				ev.RoomCode, string(ev.Kind), ev.ActorID, payload, at)

			switch ev.Kind {
			case models.EventRoomFinished, models.EventRoomDeleted:
				batch.Queue(`
					UPDATE rooms SET status = $2, ended_at = $3
					WHERE code = $1 AND ended_at IS NULL`,
					ev.RoomCode, endStatus(ev.Kind), at)
			}
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func endStatus(kind models.RoomEventKind) string {
	if kind == models.EventRoomDeleted {
		return "deleted"
	}
	return "finished"
}

// MarkRoomAbandoned closes a room row that saw no events for too long.
func MarkRoomAbandoned(ctx context.Context, code string) error {
	db, err := pool()
	if err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE rooms SET status = 'abandoned', ended_at = NOW()
			WHERE code = $1 AND ended_at IS NULL`, code)
		return err
	})
}

// RoomEvents returns the recorded history of a room, oldest first.
func RoomEvents(ctx context.Context, code string) ([]models.RoomEvent, error) {
	db, err := pool()
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `
		SELECT room_code, kind, COALESCE(actor_id, ''), payload, created_at
		FROM room_events WHERE room_code = $1 ORDER BY created_at, id`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RoomEvent
	for rows.Next() {
		var (
			ev      models.RoomEvent
			kind    string
			payload []byte
			at      time.Time
		)
		if err := rows.Scan(&ev.RoomCode, &kind, &ev.ActorID, &payload, &at); err != nil {
			return nil, err
		}
		ev.Kind = models.RoomEventKind(kind)
		ev.Timestamp = at.UnixMilli()
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// HistorySink exposes the event functions to the historian.
type HistorySink struct{}

func (HistorySink) InsertRoomEvents(ctx context.Context, events []models.RoomEvent) error {
	return InsertRoomEvents(ctx, events)
}

func (HistorySink) MarkRoomAbandoned(ctx context.Context, code string) error {
	return MarkRoomAbandoned(ctx, code)
}
