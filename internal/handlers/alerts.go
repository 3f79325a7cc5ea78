// internal/handlers/alerts.go
package handlers

import (
	"sync"

	"github.com/jason-s-yu/neocascade/internal/game"
)

// alertHub fans simulator alerts out to the sockets attached to each room.
type alertHub struct {
	mu   sync.RWMutex
	subs map[string]map[*roomConn]struct{}
}

func newAlertHub() *alertHub {
	return &alertHub{subs: make(map[string]map[*roomConn]struct{})}
}

func (h *alertHub) add(code string, c *roomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[code] == nil {
		h.subs[code] = make(map[*roomConn]struct{})
	}
	h.subs[code][c] = struct{}{}
}

func (h *alertHub) remove(code string, c *roomConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[code], c)
	if len(h.subs[code]) == 0 {
		delete(h.subs, code)
	}
}

func (h *alertHub) publish(code string, alerts []game.Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subs[code] {
		for _, a := range alerts {
			c.send(outMessage{Type: "alert", Alert: &a})
		}
	}
}
