package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/database"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupServer starts an httptest server over an in-memory store. No database is connected.
func setupServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	require.NoError(t, auth.Init(time.Hour))

	logger, _ := test.NewNullLogger()
	mem := store.NewMemoryStore()
	svc := game.NewService(mem, game.Options{Logger: logger})
	srv := NewServer(svc, logger, monitoring.New("test"))
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		svc.Simulator.Stop()
		_ = mem.Close()
	})
	return ts, srv
}

// guest signs in a guest and returns its auth token and id.
func guest(t *testing.T, ts *httptest.Server, name string) (string, string) {
	t.Helper()
	resp := do(t, ts, http.MethodPost, "/user/guest", "", map[string]string{"name": name})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token, body.Identity.ID
}

func do(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: AuthCookie, Value: token})
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestGuestAndMe(t *testing.T) {
	ts, _ := setupServer(t)
	token, id := guest(t, ts, "  Nemo ")

	var me auth.Identity
	resp := do(t, ts, http.MethodGet, "/user/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &me)
	assert.Equal(t, id, me.ID)
	assert.Equal(t, "Nemo", me.Name)
	assert.True(t, me.Guest)

	resp = do(t, ts, http.MethodGet, "/user/me", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/user/guest", "", map[string]string{"name": "   "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAccountsNeedDatabase(t *testing.T) {
	ts, _ := setupServer(t)
	require.Nil(t, database.DB)

	resp := do(t, ts, http.MethodPost, "/user/create", "", map[string]string{
		"email": "nemo@example.com", "password": "hunter2", "username": "Nemo",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoomLifecycle(t *testing.T) {
	ts, _ := setupServer(t)
	captain, captainID := guest(t, ts, "Nemo")
	navigator, navigatorID := guest(t, ts, "Ned")

	resp := do(t, ts, http.MethodPost, "/room/create", captain, map[string]string{"name": "Nautilus"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, captainID, cookieValue(resp, PlayerCookie))
	var created createRoomResponse
	decode(t, resp, &created)
	assert.Len(t, created.Code, game.CodeLength)
	assert.Equal(t, models.RoleCaptain, created.Role)
	assert.Equal(t, created.Code, cookieValue(resp, RoomCookie))

	resp = do(t, ts, http.MethodPost, "/room/join", navigator, map[string]string{"code": created.Code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var joined game.JoinResult
	decode(t, resp, &joined)
	assert.Equal(t, models.RoleNavigator, joined.Role)
	assert.False(t, joined.Rejoined)

	resp = do(t, ts, http.MethodPost, "/room/join", navigator, map[string]string{"code": created.Code})
	decode(t, resp, &joined)
	assert.True(t, joined.Rejoined, "joining again keeps the seat")

	var list []models.RoomSummary
	decode(t, do(t, ts, http.MethodGet, "/room/list", "", nil), &list)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].CurrentPlayers)

	var room models.Room
	decode(t, do(t, ts, http.MethodGet, "/room/get/"+created.Code, "", nil), &room)
	assert.Equal(t, "Nautilus", room.Name)
	assert.Contains(t, room.Players, navigatorID)

	resp = do(t, ts, http.MethodPost, "/room/leave", navigator, map[string]string{"code": created.Code})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Values("Set-Cookie")[0], "Max-Age=0")

	resp = do(t, ts, http.MethodPost, "/room/leave", captain, map[string]string{"code": created.Code})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/room/get/"+created.Code, "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "last one out deletes the room")
}

func TestRoomErrors(t *testing.T) {
	ts, _ := setupServer(t)
	token, _ := guest(t, ts, "Nemo")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"create without auth", http.MethodPost, "/room/create", "", map[string]string{"name": "x"}, http.StatusUnauthorized},
		{"create without name", http.MethodPost, "/room/create", token, map[string]string{"name": " "}, http.StatusBadRequest},
		{"join unknown", http.MethodPost, "/room/join", token, map[string]string{"code": "ZZZZZZ"}, http.StatusNotFound},
		{"join malformed", http.MethodPost, "/room/join", token, map[string]string{"code": "abc"}, http.StatusBadRequest},
		{"get unknown", http.MethodGet, "/room/get/ZZZZZZ", "", nil, http.StatusNotFound},
		{"messages unknown", http.MethodGet, "/room/messages/ZZZZZZ", "", nil, http.StatusNotFound},
		{"qr unknown", http.MethodGet, "/room/qr/ZZZZZZ", "", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, tt.method, tt.path, tt.token, tt.body)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestQRCode(t *testing.T) {
	ts, _ := setupServer(t)
	token, _ := guest(t, ts, "Nemo")
	var created createRoomResponse
	decode(t, do(t, ts, http.MethodPost, "/room/create", token, map[string]string{"name": "Nautilus"}), &created)

	resp := do(t, ts, http.MethodGet, "/room/qr/"+created.Code, "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(resp.Header.Get("Cache-Control"), "private"))
	assert.Contains(t, resp.Header.Get("Vary"), "X-Forwarded-Proto")

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestJoinURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/room/qr/C7X9QZ", nil)
	r.Host = "sub.example.com"
	assert.Equal(t, "http://sub.example.com/?join=C7X9QZ", joinURL(r, "C7X9QZ"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://sub.example.com/?join=C7X9QZ", joinURL(r, "C7X9QZ"))
}

func TestPingAndMetrics(t *testing.T) {
	ts, _ := setupServer(t)

	resp := do(t, ts, http.MethodGet, "/ping", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodGet, "/metrics", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "test_http_request_duration_seconds")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{game.ErrNotFound, http.StatusNotFound},
		{game.ErrRoomFull, http.StatusConflict},
		{game.ErrRoomClosed, http.StatusConflict},
		{game.ErrStaleVersion, http.StatusConflict},
		{game.ErrInvalidInput, http.StatusBadRequest},
		{auth.ErrAuthFailure, http.StatusUnauthorized},
		{game.ErrForbidden, http.StatusForbidden},
		{store.ErrUnavailable, http.StatusServiceUnavailable},
		{game.ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
