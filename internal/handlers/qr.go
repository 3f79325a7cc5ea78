// internal/handlers/qr.go
package handlers

import (
	"net/http"
	"net/url"

	"github.com/jason-s-yu/neocascade/internal/game"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// joinURL is the link a scanned code opens: the site root with the room code as a query.
func joinURL(r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/", RawQuery: url.Values{"join": {code}}.Encode()}
	return u.String()
}

// QRHandler renders a PNG QR code of the join link for an existing room.
func (s *Server) QRHandler(w http.ResponseWriter, r *http.Request) {
	code, err := game.NormalizeCode(param(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.Game.Rooms.GetRoom(r.Context(), code); err != nil {
		s.writeError(w, r, err)
		return
	}

	png, err := qrcode.Encode(joinURL(r, code), qrcode.Medium, qrSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	// the link depends on request headers, so shared caches must not keep it
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Add("Vary", "Host, X-Forwarded-Proto")
	_, _ = w.Write(png)
}
