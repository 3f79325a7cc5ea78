// internal/game/presence_test.go
package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rosterLog records roster callbacks as "kind:id" strings.
type rosterLog struct {
	mu     sync.Mutex
	events []string
}

func (l *rosterLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *rosterLog) PlayerJoined(id string, _ models.Player)  { l.add("joined:" + id) }
func (l *rosterLog) PlayerChanged(id string, _ models.Player) { l.add("changed:" + id) }
func (l *rosterLog) PlayerLeft(id string, _ models.Player)    { l.add("left:" + id) }

func (l *rosterLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestTrackRoster(t *testing.T) {
	r, s, _ := setupRegistry(t)
	ctx := context.Background()

	code, err := r.CreateRoom(ctx, "Nautilus", "p0", profile("Nemo"))
	require.NoError(t, err)
	_, err = r.JoinRoom(ctx, code, "p1", profile("Ned"))
	require.NoError(t, err)

	log := &rosterLog{}
	stop, err := TrackRoster(s, code, "p1", log, nil)
	require.NoError(t, err)
	defer stop()

	has := func(want string) func() bool {
		return func() bool {
			for _, e := range log.snapshot() {
				if e == want {
					return true
				}
			}
			return false
		}
	}

	_, err = r.JoinRoom(ctx, code, "p2", profile("Conseil"))
	require.NoError(t, err)
	assert.Eventually(t, has("joined:p2"), 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.SetOnline(ctx, code, "p1", true))
	assert.Eventually(t, has("changed:p1"), 2*time.Second, 5*time.Millisecond, "own changes are reported")

	require.NoError(t, r.LeaveRoom(ctx, code, "p2"))
	assert.Eventually(t, has("left:p2"), 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.LeaveRoom(ctx, code, "p1"))
	// let any stray callbacks land before asserting on the full list
	time.Sleep(50 * time.Millisecond)
	ev := log.snapshot()
	assert.NotContains(t, ev, "joined:p0", "existing crew is not announced")
	assert.NotContains(t, ev, "joined:p1")
	assert.NotContains(t, ev, "left:p1", "own departure is suppressed")
}
