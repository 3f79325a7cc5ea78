// internal/game/controls.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jason-s-yu/neocascade/internal/models"
	"github.com/jason-s-yu/neocascade/internal/monitoring"
	"github.com/jason-s-yu/neocascade/internal/store"
	"github.com/sirupsen/logrus"
)

// Navigation grid bounds accepted by set_course.
const (
	GridMin = -20.0
	GridMax = 20.0
)

// SilentRunningSpeed is the speed the captain's silent running order sets.
const SilentRunningSpeed = 5.0

// RepairPowerCost is the power a single repair consumes.
const RepairPowerCost = 10.0

// Frequencies lists the radio channels the comms officer may tune to, in MHz.
var Frequencies = []float64{121.5, 243.0, 156.8}

// Intent is a control request from a player. Only the fields its action needs are read.
// When Version is set it must match the room's current version.
type Intent struct {
	Action  models.Action `json:"action"`
	Version *int64        `json:"version,omitempty"`

	Value   *float64       `json:"value,omitempty"` // depth in meters or speed in knots
	X       *float64       `json:"x,omitempty"`
	Y       *float64       `json:"y,omitempty"`
	Mission models.Mission `json:"mission,omitempty"`
	System  string         `json:"system,omitempty"`

	Engines     *int `json:"engines,omitempty"`
	Sonar       *int `json:"sonar,omitempty"`
	LifeSupport *int `json:"lifeSupport,omitempty"`

	Frequency float64 `json:"frequency,omitempty"`
	Contact   string  `json:"contact,omitempty"`
	Text      string  `json:"text,omitempty"`
}

// Outcome is what the issuing player is told after an intent is applied.
type Outcome struct {
	Action  models.Action `json:"action"`
	Notice  string        `json:"notice"`
	Version int64         `json:"version"`
}

// effect mutates the vessel for one action. persisted is false for actions that only produce a notice.
type effect func(v *models.Vessel, in Intent) (notice string, persisted bool, err error)

var effects = map[models.Action]effect{
	models.ActionSetDepth: func(v *models.Vessel, in Intent) (string, bool, error) {
		depth, err := rangeArg("value", in.Value, 0, models.MaxDepth)
		if err != nil {
			return "", false, err
		}
		v.Depth = -depth
		return fmt.Sprintf("Depth set to %.0f m", depth), true, nil
	},
	models.ActionSetSpeed: func(v *models.Vessel, in Intent) (string, bool, error) {
		speed, err := rangeArg("value", in.Value, 0, models.MaxSpeed)
		if err != nil {
			return "", false, err
		}
		v.Speed = speed
		return fmt.Sprintf("Speed set to %.0f knots", speed), true, nil
	},
	models.ActionSetMission: func(v *models.Vessel, in Intent) (string, bool, error) {
		if !in.Mission.Valid() {
			return "", false, fmt.Errorf("%w: unknown mission %q", ErrInvalidInput, in.Mission)
		}
		v.Mission = in.Mission
		return fmt.Sprintf("Mission changed to %s", in.Mission), true, nil
	},
	models.ActionEmergencySurface: func(v *models.Vessel, in Intent) (string, bool, error) {
		v.Depth = 0
		v.Speed = 0
		return "EMERGENCY! Blowing ballast, surfacing now", true, nil
	},
	models.ActionSilentRunning: func(v *models.Vessel, in Intent) (string, bool, error) {
		v.Speed = SilentRunningSpeed
		return "Silent running engaged", true, nil
	},

	models.ActionSetCourse: func(v *models.Vessel, in Intent) (string, bool, error) {
		x, err := rangeArg("x", in.X, GridMin, GridMax)
		if err != nil {
			return "", false, err
		}
		y, err := rangeArg("y", in.Y, GridMin, GridMax)
		if err != nil {
			return "", false, err
		}
		v.Target = models.Point{X: x, Y: y}
		return fmt.Sprintf("Course set for X=%g, Y=%g", x, y), true, nil
	},
	models.ActionScanArea:   notice("Scanning area... no contacts detected"),
	models.ActionPlotCourse: notice("Route plotted, follow the chart"),

	models.ActionAllocatePower: func(v *models.Vessel, in Intent) (string, bool, error) {
		if in.Engines == nil || in.Sonar == nil || in.LifeSupport == nil {
			return "", false, fmt.Errorf("%w: engines, sonar and lifeSupport are required", ErrInvalidInput)
		}
		a := models.PowerAllocation{Engines: *in.Engines, Sonar: *in.Sonar, LifeSupport: *in.LifeSupport}
		for _, share := range []int{a.Engines, a.Sonar, a.LifeSupport} {
			if share < 0 || share > 100 {
				return "", false, fmt.Errorf("%w: power shares must be between 0 and 100", ErrInvalidInput)
			}
		}
		if a.Engines+a.Sonar+a.LifeSupport != 100 {
			return "", false, fmt.Errorf("%w: power allocation must add up to 100%%", ErrInvalidInput)
		}
		v.PowerAllocation = a
		return fmt.Sprintf("Power allocated: engines %d%%, sonar %d%%, life support %d%%",
			a.Engines, a.Sonar, a.LifeSupport), true, nil
	},
	models.ActionRepair: func(v *models.Vessel, in Intent) (string, bool, error) {
		if _, ok := v.Systems.Get(in.System); !ok {
			return "", false, fmt.Errorf("%w: unknown system %q (want one of %s)",
				ErrInvalidInput, in.System, strings.Join(models.SystemNames, ", "))
		}
		v.Systems.Set(in.System, models.MaxPercent)
		v.Power = math.Max(0, v.Power-RepairPowerCost)
		return fmt.Sprintf("System %s repaired", in.System), true, nil
	},

	models.ActionActiveSonar:  notice("Active sonar ping sent"),
	models.ActionPassiveSonar: notice("Passive sonar listening"),

	models.ActionLoadTorpedo: notice("Torpedo loaded"),
	models.ActionFireTorpedo: func(v *models.Vessel, in Intent) (string, bool, error) {
		if in.Contact == "" {
			return "Torpedo away", false, nil
		}
		return fmt.Sprintf("Torpedo away at %s", in.Contact), false, nil
	},
	models.ActionCountermeasures: notice("Countermeasures deployed"),
	models.ActionEvade:           notice("Evasive maneuver"),

	models.ActionTuneFrequency: func(v *models.Vessel, in Intent) (string, bool, error) {
		for _, f := range Frequencies {
			if f == in.Frequency {
				return fmt.Sprintf("Tuned to %.1f MHz", f), false, nil
			}
		}
		return "", false, fmt.Errorf("%w: unsupported frequency %.1f", ErrInvalidInput, in.Frequency)
	},
	models.ActionBroadcast: func(v *models.Vessel, in Intent) (string, bool, error) {
		text, err := ValidateMessage(in.Text)
		if err != nil {
			return "", false, err
		}
		return "Broadcast: " + text, false, nil
	},
}

func notice(msg string) effect {
	return func(*models.Vessel, Intent) (string, bool, error) {
		return msg, false, nil
	}
}

func rangeArg(name string, v *float64, lo, hi float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	if math.IsNaN(*v) || *v < lo || *v > hi {
		return 0, fmt.Errorf("%w: %s must be between %g and %g", ErrInvalidInput, name, lo, hi)
	}
	return *v, nil
}

// Controls applies role-scoped intents to the vessel of a room.
type Controls struct {
	Store    store.Store
	Logger   *logrus.Logger
	Recorder EventRecorder
	Metrics  *monitoring.Metrics
	Now      func() time.Time
}

// NewControls returns a Controls bound to s.
func NewControls(s store.Store, logger *logrus.Logger) *Controls {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Controls{Store: s, Logger: logger, Recorder: nopRecorder{}, Now: time.Now}
}

// Apply checks that the player's role may issue the intent, that the intent is not stale
// and that its arguments are valid, then applies it in one transaction.
func (c *Controls) Apply(ctx context.Context, code, playerID string, in Intent) (Outcome, error) {
	out, err := c.apply(ctx, code, playerID, in)
	c.Metrics.Intent(intentLabel(in.Action), intentResult(err))
	if err != nil {
		return Outcome{}, err
	}

	c.Logger.WithFields(logrus.Fields{
		"room":   code,
		"player": playerID,
		"action": in.Action,
	}).Debug(out.Notice)
	if c.Recorder != nil {
		ev := models.RoomEvent{
			RoomCode:  code,
			Kind:      models.EventControl,
			ActorID:   playerID,
			Payload:   map[string]interface{}{"action": string(in.Action), "notice": out.Notice},
			Timestamp: c.now(),
		}
		if err := c.Recorder.RecordRoomEvent(ctx, ev); err != nil {
			c.Logger.WithError(err).WithField("room", code).Warn("failed to record control event")
		}
	}
	return out, nil
}

func (c *Controls) apply(ctx context.Context, code, playerID string, in Intent) (Outcome, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return Outcome{}, err
	}
	fx, ok := effects[in.Action]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, in.Action)
	}

	out := Outcome{Action: in.Action}
	_, err = c.Store.Transaction(ctx, RoomPath(code), func(cur store.Snapshot) (interface{}, error) {
		room, err := decodeRoom(cur)
		if err != nil {
			return nil, err
		}
		player, ok := room.Players[playerID]
		if !ok {
			return nil, fmt.Errorf("%w: not aboard room %s", ErrForbidden, code)
		}
		if !player.Role.Can(in.Action) {
			return nil, fmt.Errorf("%w: %s cannot %s", ErrForbidden, player.Role, in.Action)
		}
		if room.Status == models.StatusFinished {
			return nil, ErrRoomClosed
		}
		if in.Version != nil && *in.Version != room.Version {
			return nil, fmt.Errorf("%w: have %d, room is at %d", ErrStaleVersion, *in.Version, room.Version)
		}

		msg, persisted, err := fx(&room.Submarine, in)
		if err != nil {
			return nil, err
		}
		out.Notice = msg
		out.Version = room.Version
		if !persisted {
			return store.NoChange, nil
		}
		room.Submarine.Clamp()
		room.Version++
		out.Version = room.Version
		return room, nil
	})
	return out, err
}

func (c *Controls) now() int64 {
	if c.Now == nil {
		return time.Now().UnixMilli()
	}
	return c.Now().UnixMilli()
}

// intentLabel keeps the metric's action label within the known action set.
func intentLabel(a models.Action) string {
	if _, ok := effects[a]; !ok {
		return "unknown"
	}
	return string(a)
}

func intentResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrStaleVersion):
		return "stale"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "error"
}

// ValidateMessage trims free text and checks it is non-empty and at most MaxMessageLength runes.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", fmt.Errorf("%w: message is longer than %d characters", ErrInvalidInput, MaxMessageLength)
	}
	return text, nil
}
