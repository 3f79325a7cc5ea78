// internal/models/vessel.go
package models

// Vessel limits.
const (
	MaxDepth   = 500.0
	MaxSpeed   = 30.0
	MaxPercent = 100.0
)

// Mission is the current standing order of the vessel.
type Mission string

const (
	MissionPatrol  Mission = "Patrol"
	MissionRecon   Mission = "Recon"
	MissionRescue  Mission = "Rescue"
	MissionAttack  Mission = "Attack"
	MissionStealth Mission = "Stealth"
)

// Missions lists every valid mission.
var Missions = []Mission{MissionPatrol, MissionRecon, MissionRescue, MissionAttack, MissionStealth}

// Valid reports whether m is a known mission.
func (m Mission) Valid() bool {
	for _, known := range Missions {
		if m == known {
			return true
		}
	}
	return false
}

// Point is a position on the navigation grid.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Systems holds subsystem health percentages.
type Systems struct {
	Engines     float64 `json:"engines"`
	Sonar       float64 `json:"sonar"`
	Weapons     float64 `json:"weapons"`
	Comms       float64 `json:"comms"`
	LifeSupport float64 `json:"lifeSupport"`
}

// SystemNames are the keys accepted by the repair control.
var SystemNames = []string{"engines", "sonar", "weapons", "comms", "lifeSupport"}

// Get returns the health of a named subsystem.
func (s Systems) Get(name string) (float64, bool) {
	switch name {
	case "engines":
		return s.Engines, true
	case "sonar":
		return s.Sonar, true
	case "weapons":
		return s.Weapons, true
	case "comms":
		return s.Comms, true
	case "lifeSupport":
		return s.LifeSupport, true
	}
	return 0, false
}

// Set updates the health of a named subsystem and reports whether the name was known.
func (s *Systems) Set(name string, value float64) bool {
	switch name {
	case "engines":
		s.Engines = value
	case "sonar":
		s.Sonar = value
	case "weapons":
		s.Weapons = value
	case "comms":
		s.Comms = value
	case "lifeSupport":
		s.LifeSupport = value
	default:
		return false
	}
	return true
}

// PowerAllocation splits reactor output between the main consumers. Always sums to 100.
type PowerAllocation struct {
	Engines     int `json:"engines"`
	Sonar       int `json:"sonar"`
	LifeSupport int `json:"lifeSupport"`
}

// Vessel is the shared submarine state every crew member reads and writes.
//
// Depth is stored as a non-positive number of meters; clients display its absolute value.
type Vessel struct {
	Depth           float64         `json:"depth"`
	Speed           float64         `json:"speed"`
	Oxygen          float64         `json:"oxygen"`
	Power           float64         `json:"power"`
	Hull            float64         `json:"hull"`
	Location        Point           `json:"location"`
	Target          Point           `json:"target"`
	Mission         Mission         `json:"mission"`
	Alerts          []string        `json:"alerts,omitempty"`
	Systems         Systems         `json:"systems"`
	PowerAllocation PowerAllocation `json:"powerAllocation"`
}

// NewVessel returns a surfaced, fully supplied vessel on patrol at the origin.
func NewVessel() Vessel {
	return Vessel{
		Depth:   0,
		Speed:   0,
		Oxygen:  MaxPercent,
		Power:   MaxPercent,
		Hull:    MaxPercent,
		Mission: MissionPatrol,
		Systems: Systems{
			Engines:     MaxPercent,
			Sonar:       MaxPercent,
			Weapons:     MaxPercent,
			Comms:       MaxPercent,
			LifeSupport: MaxPercent,
		},
		PowerAllocation: PowerAllocation{Engines: 50, Sonar: 30, LifeSupport: 20},
	}
}

// Clamp forces every bounded field back into its legal range.
func (v *Vessel) Clamp() {
	v.Depth = clamp(v.Depth, -MaxDepth, 0)
	v.Speed = clamp(v.Speed, 0, MaxSpeed)
	v.Oxygen = clamp(v.Oxygen, 0, MaxPercent)
	v.Power = clamp(v.Power, 0, MaxPercent)
	v.Hull = clamp(v.Hull, 0, MaxPercent)
	v.Systems.Engines = clamp(v.Systems.Engines, 0, MaxPercent)
	v.Systems.Sonar = clamp(v.Systems.Sonar, 0, MaxPercent)
	v.Systems.Weapons = clamp(v.Systems.Weapons, 0, MaxPercent)
	v.Systems.Comms = clamp(v.Systems.Comms, 0, MaxPercent)
	v.Systems.LifeSupport = clamp(v.Systems.LifeSupport, 0, MaxPercent)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
