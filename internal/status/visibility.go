package status

import (
	"strings"

	"github.com/pitabwire/readiness/model"
)

// Pill is one label unit rendered for a status.
type Pill struct {
	Label string `json:"label"`
	Style Style  `json:"style"`
}

// GetStatusInfo returns the display metadata of state. Unrecognised states
// get an "Unknown" entry instead of an error.
func GetStatusInfo(state model.WorkflowState) Info {
	if info, ok := Lookup(state); ok {
		return info
	}
	return Info{
		State:       state,
		Label:       "Unknown",
		Description: "Status not recognised",
		Style:       styleUnknown,
	}
}

// GetStatusPills returns the pills shown to viewer for state. An empty viewer
// means no role is known.
//
// While a submission waits on a role, that role sees only the short label and
// every other viewer also sees the description. All other states render as a
// single pill.
func GetStatusPills(state model.WorkflowState, viewer model.Role) []Pill {
	info := GetStatusInfo(state)
	pills := []Pill{{Label: info.Label, Style: info.Style}}

	actor, waiting := awaiting[state]
	if !waiting || viewer == actor {
		return pills
	}
	return append(pills, Pill{Label: info.Description, Style: styleDetail})
}

// GetWaitingMessage returns the first-person waiting message for viewer.
// Only the submitting Nodal Officer is passively waiting, so every other
// role gets the empty string, as does an unrecognised state.
func GetWaitingMessage(state model.WorkflowState, viewer model.Role) string {
	if viewer != model.RoleNodalOfficer {
		return ""
	}
	info, ok := Lookup(state)
	if !ok {
		return ""
	}
	return "Your submission is " + strings.ToLower(info.Description) + "."
}
