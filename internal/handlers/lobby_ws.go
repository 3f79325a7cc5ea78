// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/neocascade/internal/middleware"
	"github.com/jason-s-yu/neocascade/internal/models"
)

const lobbySubprotocol = "lobby"

type lobbyMessage struct {
	Type  string               `json:"type"`
	Rooms []models.RoomSummary `json:"rooms"`
}

// LobbyWSHandler pushes the list of joinable rooms on every change. Clients only listen;
// anything they send is discarded.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{lobbySubprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != lobbySubprotocol {
		c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
		return
	}

	// CloseRead cancels ctx once the client goes away
	ctx := c.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lists, err := s.Game.Rooms.WatchOpenRooms(ctx)
	if err != nil {
		s.Logger.WithError(err).Error("failed to watch open rooms")
		return
	}

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
	s.Metrics.ConnectionOpened(lobbySubprotocol)
	defer s.Metrics.ConnectionClosed(lobbySubprotocol)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, nil)
			return
		case rooms, ok := <-lists:
			if !ok {
				return
			}
			data, err := json.Marshal(lobbyMessage{Type: "rooms", Rooms: rooms})
			if err != nil {
				s.Logger.WithError(err).Warn("failed to marshal room list")
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			pingCancel()
			if err != nil {
				middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
				return
			}
		}
	}
}
