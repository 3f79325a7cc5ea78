// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           UUID PRIMARY KEY,
		email        TEXT UNIQUE,
		password     TEXT,
		username     TEXT NOT NULL,
		avatar       TEXT NOT NULL DEFAULT '',
		is_ephemeral BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		code          TEXT PRIMARY KEY,
		status        TEXT NOT NULL DEFAULT 'active',
		first_seen    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_event_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ended_at      TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS room_events (
		id         BIGSERIAL PRIMARY KEY,
		room_code  TEXT NOT NULL REFERENCES rooms(code),
		kind       TEXT NOT NULL,
		actor_id   TEXT,
		payload    JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS room_events_room_code_idx ON room_events (room_code, created_at)`,
}

// EnsureSchema creates the tables the service needs if they are missing.
func EnsureSchema(ctx context.Context) error {
	db, err := pool()
	if err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
