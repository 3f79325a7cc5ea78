// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/middleware"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	roomSubprotocol = "room"
	outBuffer       = 32
	writeTimeout    = 5 * time.Second
	pingInterval    = 30 * time.Second
)

// outMessage is every frame the server sends on the room socket.
type outMessage struct {
	Type     string          `json:"type"`
	Room     *models.Room    `json:"room,omitempty"`
	PlayerID string          `json:"playerId,omitempty"`
	Player   *models.Player  `json:"player,omitempty"`
	Message  *models.Message `json:"message,omitempty"`
	Alert    *game.Alert     `json:"alert,omitempty"`
	Outcome  *game.Outcome   `json:"outcome,omitempty"`
	Error    string          `json:"error,omitempty"`
	Status   int             `json:"status,omitempty"`

	// closeCode, when set, makes the write pump close the socket after this frame.
	closeCode websocket.StatusCode
}

// inMessage is every frame a client may send on the room socket.
//
//	{"type": "control", "intent": {"action": "set_depth", "value": 120}}
//	{"type": "chat", "text": "Dive!"}
//	{"type": "leave"}
//	{"type": "finish"}
type inMessage struct {
	Type   string      `json:"type"`
	Intent game.Intent `json:"intent"`
	Text   string      `json:"text"`
}

// roomConn is one player's socket into one room.
type roomConn struct {
	ID       string
	PlayerID string
	Code     string
	OutChan  chan outMessage
	logger   *logrus.Logger

	// leaving is set while the player's own leave is in flight; the socket then closes normally
	// instead of reporting the room as gone.
	leaving atomic.Bool
}

// send queues a frame without blocking; a client too slow to drain its buffer loses frames.
func (c *roomConn) send(m outMessage) {
	select {
	case c.OutChan <- m:
	default:
		c.logger.WithFields(logrus.Fields{"room": c.Code, "player": c.PlayerID, "type": m.Type}).
			Warn("outbound buffer full, dropping frame")
	}
}

func (c *roomConn) sendError(err error) {
	c.send(outMessage{Type: "error", Error: err.Error(), Status: statusFor(err)})
}

func (c *roomConn) PlayerJoined(id string, p models.Player) {
	c.send(outMessage{Type: "player_joined", PlayerID: id, Player: &p})
}

func (c *roomConn) PlayerChanged(id string, p models.Player) {
	c.send(outMessage{Type: "player_changed", PlayerID: id, Player: &p})
}

func (c *roomConn) PlayerLeft(id string, p models.Player) {
	c.send(outMessage{Type: "player_left", PlayerID: id, Player: &p})
}

// RoomWSHandler streams a room to one of its players and applies the player's intents.
func (s *Server) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{roomSubprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != roomSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the room subprotocol")
		return
	}
	id, err := identify(r)
	if err != nil {
		c.Close(InvalidAuthTokenError, "invalid auth token")
		return
	}
	code, err := game.NormalizeCode(param(r, "code"))
	if err != nil {
		c.Close(InvalidRoomCodeError, "invalid room code")
		return
	}
	room, err := s.Game.Rooms.GetRoom(r.Context(), code)
	if errors.Is(err, game.ErrNotFound) {
		c.Close(InvalidRoomCodeError, "room does not exist")
		return
	}
	if err != nil {
		s.Logger.WithError(err).WithField("room", code).Error("failed to load room for socket")
		return
	}
	if _, aboard := room.Players[id.ID]; !aboard {
		c.Close(NotAboardError, "join the room before connecting")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn := &roomConn{
		ID:       uuid.NewString(),
		PlayerID: id.ID,
		Code:     code,
		OutChan:  make(chan outMessage, outBuffer),
		logger:   s.Logger,
	}
	log := s.Logger.WithFields(logrus.Fields{"room": code, "player": id.ID})

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
	s.Metrics.ConnectionOpened(roomSubprotocol)
	defer s.Metrics.ConnectionClosed(roomSubprotocol)

	onError := func(err error) {
		log.WithError(err).Warn("room subscription failed")
		conn.send(outMessage{Type: "error", Error: "room feed interrupted", Status: statusFor(err)})
	}

	unsubscribeState, err := s.Game.Store.Subscribe(game.RoomPath(code), func(snap store.Snapshot) {
		if conn.leaving.Load() {
			return
		}
		if !snap.Exists {
			conn.send(outMessage{Type: "room_closed", closeCode: RoomClosedError})
			return
		}
		var room models.Room
		if err := snap.Decode(&room); err != nil {
			onError(err)
			return
		}
		if room.Code == "" {
			room.Code = code
		}
		if _, aboard := room.Players[id.ID]; !aboard {
			conn.send(outMessage{Type: "left", closeCode: NotAboardError})
			return
		}
		conn.send(outMessage{Type: "room_state", Room: &room})
	}, onError)
	if err != nil {
		log.WithError(err).Error("failed to subscribe to room")
		return
	}
	defer unsubscribeState()

	unsubscribeRoster, err := game.TrackRoster(s.Game.Store, code, id.ID, conn, onError)
	if err != nil {
		log.WithError(err).Error("failed to track roster")
		return
	}
	defer unsubscribeRoster()

	unsubscribeChat, err := s.Game.Store.SubscribeChildren(game.RoomPath(code)+"/messages", store.ChildListener{
		SkipInitial: true,
		Added: func(snap store.Snapshot) {
			var msg models.Message
			if err := snap.Decode(&msg); err != nil {
				onError(err)
				return
			}
			msg.Key = snap.Key
			conn.send(outMessage{Type: "chat", Message: &msg})
		},
	}, onError)
	if err != nil {
		log.WithError(err).Error("failed to subscribe to chat")
		return
	}
	defer unsubscribeChat()

	if err := s.Game.Rooms.SetOnline(ctx, code, id.ID, true); err != nil {
		log.WithError(err).Warn("failed to mark player online")
	}
	defer func() {
		offCtx, offCancel := context.WithTimeout(context.Background(), writeTimeout)
		defer offCancel()
		err := s.Game.Rooms.SetOnline(offCtx, code, id.ID, false)
		if err != nil && !errors.Is(err, game.ErrNotFound) {
			log.WithError(err).Warn("failed to mark player offline")
		}
	}()

	s.alerts.add(code, conn)
	defer s.alerts.remove(code, conn)
	s.Game.Simulator.Attach(code)
	defer s.Game.Simulator.Detach(code)
	defer s.Intents.Forget(conn.ID)

	go s.roomWritePump(ctx, c, conn)
	err = s.roomReadPump(ctx, c, conn, id)
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
}

// roomReadPump handles inbound frames until the socket closes or the player leaves.
func (s *Server) roomReadPump(ctx context.Context, c *websocket.Conn, conn *roomConn, id auth.Identity) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, RoomClosedError, NotAboardError:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg inMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.sendError(errors.New("invalid JSON format"))
			continue
		}
		if msg.Type != "leave" && !s.Intents.Allow(conn.ID) {
			conn.send(outMessage{Type: "error", Error: "rate limited", Status: http.StatusTooManyRequests})
			continue
		}

		switch msg.Type {
		case "control":
			out, err := s.Game.Controls.Apply(ctx, conn.Code, conn.PlayerID, msg.Intent)
			if err != nil {
				conn.sendError(err)
				continue
			}
			conn.send(outMessage{Type: "notice", Outcome: &out})

		case "chat":
			if err := s.chat(ctx, conn, id, msg.Text); err != nil {
				conn.sendError(err)
			}

		case "finish":
			if err := s.Game.Rooms.FinishRoom(ctx, conn.Code, conn.PlayerID); err != nil {
				conn.sendError(err)
			}

		case "leave":
			conn.leaving.Store(true)
			if err := s.Game.Rooms.LeaveRoom(ctx, conn.Code, conn.PlayerID); err != nil {
				conn.leaving.Store(false)
				conn.sendError(err)
				continue
			}
			c.Close(websocket.StatusNormalClosure, "left room")
			return nil

		default:
			conn.sendError(errors.New("unknown message type: " + msg.Type))
		}
	}
}

// chat posts a message under the sender's current name and role.
func (s *Server) chat(ctx context.Context, conn *roomConn, id auth.Identity, text string) error {
	room, err := s.Game.Rooms.GetRoom(ctx, conn.Code)
	if err != nil {
		return err
	}
	p, ok := room.Players[conn.PlayerID]
	if !ok {
		return game.ErrForbidden
	}
	name := p.Name
	if name == "" {
		name = id.Name
	}
	_, err = s.Game.Chat.Send(ctx, conn.Code, conn.PlayerID, name, p.Role, text)
	return err
}

// roomWritePump drains OutChan onto the socket and keeps it alive with pings.
func (s *Server) roomWritePump(ctx context.Context, c *websocket.Conn, conn *roomConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				s.Logger.WithError(err).Warn("failed to marshal outgoing frame")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.WithError(err).WithField("player", conn.PlayerID).Debug("failed to write to websocket")
				return
			}
			if msg.closeCode != 0 {
				c.Close(msg.closeCode, msg.Type)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Logger.WithError(err).WithField("player", conn.PlayerID).Debug("ping failed, assuming disconnect")
				return
			}
		}
	}
}
