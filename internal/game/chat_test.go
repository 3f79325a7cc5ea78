// internal/game/chat_test.go
package game

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChat(t *testing.T) (*Chat, string) {
	t.Helper()
	r, s, rec := setupRegistry(t)
	code, err := r.CreateRoom(context.Background(), "Nautilus", "p0", profile("Nemo"))
	require.NoError(t, err)

	c := NewChat(s, newTestLogger())
	c.Recorder = rec
	return c, code
}

func TestChatOrderingWithFrozenClock(t *testing.T) {
	c, code := setupChat(t)
	ctx := context.Background()
	frozen := time.UnixMilli(1_700_000_000_000)
	c.Now = func() time.Time { return frozen }

	_, err := c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, "hello")
	require.NoError(t, err)
	_, err = c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, "world")
	require.NoError(t, err)

	history, err := c.History(ctx, code)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "world", history[1].Text)
	assert.Less(t, history[0].Timestamp, history[1].Timestamp)
	assert.Equal(t, models.RoleCaptain, history[1].SenderRole)
	assert.Equal(t, "Nemo", history[1].SenderName)
	assert.NotEmpty(t, history[0].Key)
}

func TestChatTimestampsStrictlyIncrease(t *testing.T) {
	c, code := setupChat(t)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		_, err := c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	history, err := c.History(ctx, code)
	require.NoError(t, err)
	require.Len(t, history, 30)
	for i := 1; i < len(history); i++ {
		assert.Less(t, history[i-1].Timestamp, history[i].Timestamp)
		assert.Equal(t, fmt.Sprintf("msg %d", i), history[i].Text)
	}
}

func TestChatValidation(t *testing.T) {
	c, code := setupChat(t)
	ctx := context.Background()

	_, err := c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = c.Send(ctx, "ZZZZZZ", "p0", "Nemo", models.RoleCaptain, "hello")
	assert.ErrorIs(t, err, ErrNotFound)

	msg, err := c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, "  trimmed  ")
	require.NoError(t, err)
	assert.Equal(t, "trimmed", msg.Text)
}

func TestChatRetention(t *testing.T) {
	c, code := setupChat(t)
	ctx := context.Background()
	c.Retention = 3

	for i := 0; i < 5; i++ {
		_, err := c.Send(ctx, code, "p0", "Nemo", models.RoleCaptain, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	history, err := c.History(ctx, code)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "msg 2", history[0].Text)
	assert.Equal(t, "msg 4", history[2].Text)
}

func TestChatHistoryEmptyAndMissing(t *testing.T) {
	c, code := setupChat(t)
	ctx := context.Background()

	history, err := c.History(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = c.History(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}
