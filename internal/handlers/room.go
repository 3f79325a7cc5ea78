// internal/handlers/room.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/sirupsen/logrus"
)

type createRoomRequest struct {
	Name string `json:"name"`
}

type roomCodeRequest struct {
	Code string `json:"code"`
}

type createRoomResponse struct {
	Code string      `json:"code"`
	Role models.Role `json:"role"`
}

// CreateRoomHandler opens a room with the caller aboard as captain.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	code, err := s.Game.Rooms.CreateRoom(r.Context(), req.Name, id.ID, profileOf(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	role := models.RoleFor(0)
	setSession(w, code, id.ID, role)
	writeJSON(w, http.StatusCreated, createRoomResponse{Code: code, Role: role})
}

// JoinRoomHandler takes the next free seat, or returns the caller's existing seat.
func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req roomCodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.Game.Rooms.JoinRoom(r.Context(), req.Code, id.ID, profileOf(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	setSession(w, res.Code, id.ID, res.Role)
	writeJSON(w, http.StatusOK, res)
}

// LeaveRoomHandler gives up the caller's seat. The code may come from the body or the session cookie.
func (s *Server) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req roomCodeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Code == "" {
		if c, err := r.Cookie(RoomCookie); err == nil {
			req.Code = c.Value
		}
	}

	if err := s.Game.Rooms.LeaveRoom(r.Context(), req.Code, id.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.WithFields(logrus.Fields{"room": req.Code, "player": id.ID}).Debug("left room over http")
	clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// ListRoomsHandler returns the joinable rooms, newest first.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.Game.Rooms.ListOpenRooms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoomHandler returns the full room document.
func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	room, err := s.Game.Rooms.GetRoom(r.Context(), param(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// MessagesHandler returns the room's chat log in order.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := s.Game.Chat.History(r.Context(), param(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
