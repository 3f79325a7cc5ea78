package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, ts *httptest.Server, path, token, subprotocol string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if subprotocol != "" {
		opts.Subprotocols = []string{subprotocol}
	}
	if token != "" {
		opts.HTTPHeader.Set("Cookie", AuthCookie+"="+token)
	}
	c, _, err := websocket.Dial(ctx, wsURL(ts, path), opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "test done") })
	return c
}

// readUntil reads frames until one has the wanted type and returns it decoded.
func readUntil(t *testing.T, c *websocket.Conn, typ string) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %q", typ)
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		if frame["type"] == typ {
			return frame
		}
	}
}

func createRoom(t *testing.T, ts *httptest.Server, token string) string {
	t.Helper()
	var created createRoomResponse
	decode(t, do(t, ts, http.MethodPost, "/room/create", token, map[string]string{"name": "Nautilus"}), &created)
	return created.Code
}

func closeStatusOf(t *testing.T, c *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

func TestRoomSocketControlsAndChat(t *testing.T) {
	ts, srv := setupServer(t)
	captain, _ := guest(t, ts, "Nemo")
	navigator, navigatorID := guest(t, ts, "Ned")
	code := createRoom(t, ts, captain)

	c := dial(t, ts, "/room/ws/"+code, captain, roomSubprotocol)
	state := readUntil(t, c, "room_state")
	room := state["room"].(map[string]interface{})
	assert.Equal(t, code, room["code"])
	assert.Eventually(t, func() bool { return srv.Game.Simulator.Running(code) }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	send := func(v interface{}) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, c.Write(ctx, websocket.MessageText, data))
	}

	send(map[string]interface{}{"type": "control", "intent": map[string]interface{}{"action": "set_depth", "value": 120}})
	notice := readUntil(t, c, "notice")
	outcome := notice["outcome"].(map[string]interface{})
	assert.Equal(t, "set_depth", outcome["action"])

	send(map[string]interface{}{"type": "control", "intent": map[string]interface{}{"action": "set_course", "x": 1, "y": 1}})
	failure := readUntil(t, c, "error")
	assert.EqualValues(t, http.StatusForbidden, failure["status"], "captains do not navigate")

	resp := do(t, ts, http.MethodPost, "/room/join", navigator, map[string]string{"code": code})
	resp.Body.Close()
	joined := readUntil(t, c, "player_joined")
	assert.Equal(t, navigatorID, joined["playerId"])

	send(map[string]interface{}{"type": "chat", "text": "Dive!"})
	chat := readUntil(t, c, "chat")
	msg := chat["message"].(map[string]interface{})
	assert.Equal(t, "Dive!", msg["text"])
	assert.Equal(t, string(models.RoleCaptain), msg["senderRole"])
	assert.NotEmpty(t, msg["key"])

	send(map[string]interface{}{"type": "bogus"})
	readUntil(t, c, "error")
}

func TestRoomSocketLeave(t *testing.T) {
	ts, srv := setupServer(t)
	captain, _ := guest(t, ts, "Nemo")
	code := createRoom(t, ts, captain)

	c := dial(t, ts, "/room/ws/"+code, captain, roomSubprotocol)
	readUntil(t, c, "room_state")

	require.NoError(t, c.Write(context.Background(), websocket.MessageText, []byte(`{"type":"leave"}`)))
	assert.Equal(t, websocket.StatusNormalClosure, closeStatusOf(t, c))

	resp := do(t, ts, http.MethodGet, "/room/get/"+code, "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Eventually(t, func() bool { return !srv.Game.Simulator.Running(code) }, time.Second, 10*time.Millisecond)
}

func TestRoomSocketClosedWhenRoomDeleted(t *testing.T) {
	ts, _ := setupServer(t)
	captain, _ := guest(t, ts, "Nemo")
	code := createRoom(t, ts, captain)

	c := dial(t, ts, "/room/ws/"+code, captain, roomSubprotocol)
	readUntil(t, c, "room_state")

	resp := do(t, ts, http.MethodPost, "/room/leave", captain, map[string]string{"code": code})
	resp.Body.Close()
	assert.Equal(t, websocket.StatusCode(RoomClosedError), closeStatusOf(t, c))
}

func TestRoomSocketRejects(t *testing.T) {
	ts, _ := setupServer(t)
	captain, _ := guest(t, ts, "Nemo")
	stranger, _ := guest(t, ts, "Stranger")
	code := createRoom(t, ts, captain)

	tests := []struct {
		name        string
		path        string
		token       string
		subprotocol string
		want        websocket.StatusCode
	}{
		{"no subprotocol", "/room/ws/" + code, captain, "", BadSubprotocolError},
		{"no token", "/room/ws/" + code, "", roomSubprotocol, InvalidAuthTokenError},
		{"unknown room", "/room/ws/ZZZZZZ", captain, roomSubprotocol, InvalidRoomCodeError},
		{"not aboard", "/room/ws/" + code, stranger, roomSubprotocol, NotAboardError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, ts, tt.path, tt.token, tt.subprotocol)
			assert.Equal(t, tt.want, closeStatusOf(t, c))
		})
	}
}

func TestLobbySocket(t *testing.T) {
	ts, _ := setupServer(t)
	captain, _ := guest(t, ts, "Nemo")

	c := dial(t, ts, "/lobby/ws", "", lobbySubprotocol)
	first := readUntil(t, c, "rooms")
	assert.Empty(t, first["rooms"])

	code := createRoom(t, ts, captain)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		var msg lobbyMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if len(msg.Rooms) == 1 {
			assert.Equal(t, code, msg.Rooms[0].Code)
			assert.Equal(t, "Nemo", msg.Rooms[0].CaptainName)
			return
		}
	}
}
