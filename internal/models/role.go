// internal/models/role.go
package models

import "fmt"

// Role is the crew position a player holds aboard the vessel.
type Role string

const (
	RoleCaptain   Role = "Captain"
	RoleNavigator Role = "Navigator"
	RoleEngineer  Role = "Engineer"
	RoleSonar     Role = "Sonar-Operator"
	RoleWeapons   Role = "Weapons-Officer"
	RoleComms     Role = "Comms-Officer"
)

// RoleTable lists the crew roles in the order they are handed out.
var RoleTable = []Role{
	RoleCaptain,
	RoleNavigator,
	RoleEngineer,
	RoleSonar,
	RoleWeapons,
	RoleComms,
}

// ExcessRolePolicy documents what players past the end of RoleTable receive.
// "generic" means a "Crew N" label with no capabilities.
const ExcessRolePolicy = "generic"

// RoleFor returns the role for a player joining when index players are already aboard.
func RoleFor(index int) Role {
	if index < 0 {
		index = 0
	}
	if index < len(RoleTable) {
		return RoleTable[index]
	}
	return Role(fmt.Sprintf("Crew %d", index+1))
}

// NextRole returns the first RoleTable role no player in held occupies.
// Once every table role is taken it hands out the lowest free "Crew N" label.
func NextRole(held map[Role]bool) Role {
	for _, r := range RoleTable {
		if !held[r] {
			return r
		}
	}
	for n := len(RoleTable); ; n++ {
		if r := RoleFor(n); !held[r] {
			return r
		}
	}
}

// Action is a role-scoped control a player may issue against the vessel.
type Action string

const (
	ActionSetDepth         Action = "set_depth"
	ActionSetSpeed         Action = "set_speed"
	ActionSetMission       Action = "set_mission"
	ActionEmergencySurface Action = "emergency_surface"
	ActionSilentRunning    Action = "silent_running"

	ActionSetCourse  Action = "set_course"
	ActionScanArea   Action = "scan_area"
	ActionPlotCourse Action = "plot_course"

	ActionAllocatePower Action = "allocate_power"
	ActionRepair        Action = "repair"

	ActionActiveSonar  Action = "active_sonar"
	ActionPassiveSonar Action = "passive_sonar"

	ActionLoadTorpedo     Action = "load_torpedo"
	ActionFireTorpedo     Action = "fire_torpedo"
	ActionCountermeasures Action = "countermeasures"
	ActionEvade           Action = "evade"

	ActionTuneFrequency Action = "tune_frequency"
	ActionBroadcast     Action = "broadcast"
)

// Capabilities maps each role to the set of actions it may issue.
// Roles absent from the table (e.g. "Crew 7") may issue nothing.
var Capabilities = map[Role][]Action{
	RoleCaptain:   {ActionSetDepth, ActionSetSpeed, ActionSetMission, ActionEmergencySurface, ActionSilentRunning},
	RoleNavigator: {ActionSetCourse, ActionScanArea, ActionPlotCourse},
	RoleEngineer:  {ActionAllocatePower, ActionRepair},
	RoleSonar:     {ActionActiveSonar, ActionPassiveSonar},
	RoleWeapons:   {ActionLoadTorpedo, ActionFireTorpedo, ActionCountermeasures, ActionEvade},
	RoleComms:     {ActionTuneFrequency, ActionBroadcast},
}

// Can reports whether the role holds the capability for a.
func (r Role) Can(a Action) bool {
	for _, allowed := range Capabilities[r] {
		if allowed == a {
			return true
		}
	}
	return false
}
