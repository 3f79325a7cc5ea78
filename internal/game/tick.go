// internal/game/tick.go
package game

import (
	"fmt"
	"math"

	"github.com/jason-s-yu/neocascade/internal/models"
)

// TickParams tunes one simulation step.
type TickParams struct {
	MoveFactor  float64 // grid units moved per knot per tick
	Epsilon     float64 // distance at which the vessel counts as arrived
	OxygenDrain float64
	PowerDrain  float64
	DamageDepth float64 // meters below which the hull takes damage
	HullDamage  float64
	Warning     float64 // resource level that raises a warning
	Critical    float64 // resource level that raises a critical alert
}

// DefaultTickParams are the values the game ships with.
var DefaultTickParams = TickParams{
	MoveFactor:  0.01,
	Epsilon:     0.1,
	OxygenDrain: 0.01,
	PowerDrain:  0.02,
	DamageDepth: 300,
	HullDamage:  0.5,
	Warning:     50,
	Critical:    20,
}

// AlertLevel grades a vessel alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is raised when a resource crosses a threshold during a tick.
type Alert struct {
	Level    AlertLevel `json:"level"`
	Resource string     `json:"resource"`
	Message  string     `json:"message"`
}

// Tick advances the vessel by one step: move toward the target, drain oxygen and power,
// damage the hull when too deep, clamp every bounded field and report threshold crossings.
// It never reads a clock or the store, so it is safe to call from tests and tools.
func Tick(v models.Vessel, p TickParams) (models.Vessel, []Alert) {
	prev := v
	v.Clamp()

	if v.Speed > 0 {
		dx := v.Target.X - v.Location.X
		dy := v.Target.Y - v.Location.Y
		dist := math.Hypot(dx, dy)
		if dist > p.Epsilon {
			step := math.Min(v.Speed*p.MoveFactor, dist)
			v.Location.X += dx / dist * step
			v.Location.Y += dy / dist * step
		}
	}

	v.Oxygen = math.Max(0, v.Oxygen-p.OxygenDrain)
	v.Power = math.Max(0, v.Power-p.PowerDrain)
	if v.Depth < -p.DamageDepth {
		v.Hull = math.Max(0, v.Hull-p.HullDamage)
	}
	v.Clamp()

	var alerts []Alert
	for _, r := range []struct {
		name       string
		before, at float64
	}{
		{"oxygen", prev.Oxygen, v.Oxygen},
		{"power", prev.Power, v.Power},
		{"hull", prev.Hull, v.Hull},
	} {
		if a, ok := crossing(r.name, r.before, r.at, p); ok {
			alerts = append(alerts, a)
		}
	}
	return v, alerts
}

// crossing reports the most severe threshold passed on the way from before to at.
func crossing(resource string, before, at float64, p TickParams) (Alert, bool) {
	switch {
	case before >= p.Critical && at < p.Critical:
		return Alert{
			Level:    AlertCritical,
			Resource: resource,
			Message:  fmt.Sprintf("CRITICAL: %s at %.0f%%", resource, at),
		}, true
	case before >= p.Warning && at < p.Warning:
		return Alert{
			Level:    AlertWarning,
			Resource: resource,
			Message:  fmt.Sprintf("Warning: %s below %.0f%%", resource, p.Warning),
		}, true
	}
	return Alert{}, false
}
