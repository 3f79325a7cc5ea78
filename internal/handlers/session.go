// internal/handlers/session.go
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jason-s-yu/neocascade/internal/auth"
	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/jason-s-yu/neocascade/internal/models"
)

// Cookie names. The auth token is HttpOnly; the session cookies are readable by the client
// so it can rejoin its room after a reload.
const (
	AuthCookie    = "auth_token"
	RoomCookie    = "neocascade_room"
	RoleCookie    = "neocascade_role"
	PlayerCookie  = "neocascade_player"
	sessionMaxAge = 7 * 24 * time.Hour
)

// identify returns the identity carried by the auth cookie.
func identify(r *http.Request) (auth.Identity, error) {
	c, err := r.Cookie(AuthCookie)
	if err != nil || c.Value == "" {
		return auth.Identity{}, fmt.Errorf("%w: missing %s cookie", auth.ErrAuthFailure, AuthCookie)
	}
	return auth.Authenticate(c.Value)
}

func (s *Server) setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		MaxAge:   int(s.TokenTTL.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSession stores the seat the player holds so a reload can reconnect.
func setSession(w http.ResponseWriter, code, playerID string, role models.Role) {
	for name, value := range map[string]string{
		RoomCookie:   code,
		RoleCookie:   string(role),
		PlayerCookie: playerID,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			MaxAge:   int(sessionMaxAge.Seconds()),
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func clearSession(w http.ResponseWriter) {
	for _, name := range []string{RoomCookie, RoleCookie, PlayerCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
}

// profileOf is how an identity appears in a room.
func profileOf(id auth.Identity) game.Profile {
	return game.Profile{Name: id.Name, Avatar: id.Avatar}
}
