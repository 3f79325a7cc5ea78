// internal/handlers/user.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/database"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/sirupsen/logrus"
)

// MaxPlayerNameLength bounds display names, in bytes after trimming.
const MaxPlayerNameLength = 32

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type guestRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type tokenResponse struct {
	Token    string        `json:"token"`
	Identity auth.Identity `json:"identity"`
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", game.ErrInvalidInput)
	}
	if len(name) > MaxPlayerNameLength {
		return "", fmt.Errorf("%w: name is longer than %d characters", game.ErrInvalidInput, MaxPlayerNameLength)
	}
	return name, nil
}

// issue signs a token for id, sets the auth cookie and writes the token response.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, status int, id auth.Identity) {
	token, err := auth.IssueToken(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, status, tokenResponse{Token: token, Identity: id})
}

// CreateUserHandler registers an account and logs it in.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password",
//	  "username": "Nemo"
//	}
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := validateName(req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.writeError(w, r, fmt.Errorf("%w: email and password are required", game.ErrInvalidInput))
		return
	}

	user := models.User{Email: req.Email, Password: req.Password, Username: name, Avatar: req.Avatar}
	if err := database.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "email already exists"})
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.Logger.WithField("user", user.ID).Info("user created")
	s.issue(w, r, http.StatusCreated, auth.Identity{
		ID:     user.ID.String(),
		Name:   user.Username,
		Avatar: user.Avatar,
		Email:  user.Email,
	})
}

// LoginHandler checks email and password and sets the auth cookie.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthFailure) {
			s.Logger.WithField("email", req.Email).Debug("login rejected")
		}
		s.writeError(w, r, err)
		return
	}
	s.issue(w, r, http.StatusOK, auth.Identity{
		ID:     user.ID.String(),
		Name:   user.Username,
		Avatar: user.Avatar,
		Email:  user.Email,
	})
}

// GuestHandler hands out an ephemeral identity with a display name. When a database is
// connected the guest is also stored, so it can later be looked up like any user.
func (s *Server) GuestHandler(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := validateName(req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	id := auth.Identity{ID: uuid.NewString(), Name: name, Avatar: req.Avatar, Guest: true}
	if database.DB != nil {
		user := models.User{Username: name, Avatar: req.Avatar, IsEphemeral: true}
		if err := database.CreateUser(r.Context(), &user); err != nil {
			s.writeError(w, r, fmt.Errorf("failed to create ephemeral user: %w", err))
			return
		}
		id.ID = user.ID.String()
	}

	s.Logger.WithFields(logrus.Fields{"user": id.ID, "name": name}).Debug("guest identity issued")
	s.issue(w, r, http.StatusCreated, id)
}

// MeHandler returns the identity behind the auth cookie.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := identify(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// LogoutHandler clears the auth and session cookies. Room membership is left alone;
// leaving is an explicit /room/leave.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: AuthCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}
