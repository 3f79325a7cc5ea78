package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectForTest needs a disposable Postgres in DATABASE_URL.
func connectForTest(t *testing.T) context.Context {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Connect(ctx, url))
	t.Cleanup(Close)
	require.NoError(t, EnsureSchema(ctx))
	return ctx
}

func TestQueriesWithoutConnection(t *testing.T) {
	saved := DB
	DB = nil
	defer func() { DB = saved }()

	_, err := GetUserByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, InsertRoomEvents(context.Background(), nil), "empty batches never touch the pool")
	assert.ErrorIs(t, InsertRoomEvents(context.Background(), []models.RoomEvent{{RoomCode: "AAAAAA"}}), ErrNotConnected)
}

func TestUsers(t *testing.T) {
	ctx := connectForTest(t)

	email := uuid.NewString() + "@example.com"
	u := &models.User{Email: email, Password: "hunter2", Username: "nemo"}
	require.NoError(t, CreateUser(ctx, u))
	assert.NotEqual(t, uuid.Nil, u.ID)

	got, err := GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, email, got.Email)

	_, err = AuthenticateUser(ctx, email, "hunter2")
	require.NoError(t, err)
	_, err = AuthenticateUser(ctx, email, "wrong")
	assert.ErrorIs(t, err, auth.ErrAuthFailure)
	_, err = AuthenticateUser(ctx, "nobody@example.com", "x")
	assert.ErrorIs(t, err, auth.ErrAuthFailure)

	_, err = GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoomEvents(t *testing.T) {
	ctx := connectForTest(t)

	code := uuid.NewString()[:6]
	now := time.Now().UnixMilli()
	events := []models.RoomEvent{
		{RoomCode: code, Kind: models.EventRoomCreated, ActorID: "p0", Payload: map[string]interface{}{"name": "Nautilus"}, Timestamp: now},
		{RoomCode: code, Kind: models.EventPlayerJoined, ActorID: "p1", Timestamp: now + 1},
		{RoomCode: code, Kind: models.EventRoomDeleted, ActorID: "p1", Timestamp: now + 2},
	}
	require.NoError(t, InsertRoomEvents(ctx, events))

	got, err := RoomEvents(ctx, code)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.EventRoomCreated, got[0].Kind)
	assert.Equal(t, "Nautilus", got[0].Payload["name"])

	var status string
	require.NoError(t, DB.QueryRow(ctx, `SELECT status FROM rooms WHERE code=$1`, code).Scan(&status))
	assert.Equal(t, "deleted", status)

	// abandoning an ended room changes nothing
	require.NoError(t, MarkRoomAbandoned(ctx, code))
	require.NoError(t, DB.QueryRow(ctx, `SELECT status FROM rooms WHERE code=$1`, code).Scan(&status))
	assert.Equal(t, "deleted", status)
}
