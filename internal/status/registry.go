// Package status maps workflow states to display metadata and decides which
// status pills and waiting messages a viewer sees.
package status

import "github.com/pitabwire/readiness/model"

// Style holds the class identifiers a client applies to a status label.
type Style struct {
	Text       string `json:"text" yaml:"text"`
	Background string `json:"background" yaml:"background"`
	Border     string `json:"border" yaml:"border"`
}

// Info is the display metadata of a workflow state.
type Info struct {
	State       model.WorkflowState `json:"state"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Style       Style               `json:"style"`
}

var (
	styleDraft    = Style{Text: "text-gray-700", Background: "bg-gray-100", Border: "border-gray-300"}
	styleReview   = Style{Text: "text-amber-800", Background: "bg-amber-100", Border: "border-amber-300"}
	styleReturned = Style{Text: "text-orange-800", Background: "bg-orange-100", Border: "border-orange-300"}
	styleRejected = Style{Text: "text-red-800", Background: "bg-red-100", Border: "border-red-300"}
	styleApproved = Style{Text: "text-green-800", Background: "bg-green-100", Border: "border-green-300"}
	styleDetail   = Style{Text: "text-slate-600", Background: "bg-slate-50", Border: "border-slate-200"}
	styleUnknown  = Style{Text: "text-gray-500", Background: "bg-gray-50", Border: "border-gray-200"}
)

var registry = map[model.WorkflowState]Info{
	model.StateDraft: {
		Label:       "Draft",
		Description: "In draft and not yet submitted",
		Style:       styleDraft,
	},
	model.StateSubmittedToState: {
		Label:       "Under Review",
		Description: "Waiting for State Approver review",
		Style:       styleReview,
	},
	model.StateSubmittedToMOSPIReviewer: {
		Label:       "Under Review",
		Description: "Waiting for MoSPI Reviewer review",
		Style:       styleReview,
	},
	model.StateSubmittedToMOSPIApprover: {
		Label:       "Under Review",
		Description: "Waiting for MoSPI Approver approval",
		Style:       styleReview,
	},
	model.StateReturnedFromState: {
		Label:       "Returned",
		Description: "Returned by State Approver for revision",
		Style:       styleReturned,
	},
	model.StateReturnedFromMOSPIReviewer: {
		Label:       "Returned",
		Description: "Returned by MoSPI Reviewer for revision",
		Style:       styleReturned,
	},
	model.StateReturnedFromMOSPIApprover: {
		Label:       "Returned",
		Description: "Returned by MoSPI Approver for revision",
		Style:       styleReturned,
	},
	model.StateReturnedFromMOSPI: {
		Label:       "Returned",
		Description: "Returned by MoSPI for revision",
		Style:       styleReturned,
	},
	model.StateRejected: {
		Label:       "Rejected",
		Description: "Rejected and open for resubmission",
		Style:       styleRejected,
	},
	model.StateRejectedFinal: {
		Label:       "Rejected",
		Description: "Rejected with no further resubmission",
		Style:       styleRejected,
	},
	model.StateApproved: {
		Label:       "Approved",
		Description: "Approved by MoSPI",
		Style:       styleApproved,
	},
}

// awaiting maps each "waiting for someone" state to the role expected to act.
var awaiting = map[model.WorkflowState]model.Role{
	model.StateSubmittedToState:         model.RoleStateApprover,
	model.StateSubmittedToMOSPIReviewer: model.RoleMOSPIReviewer,
	model.StateSubmittedToMOSPIApprover: model.RoleMOSPIApprover,
}

// Lookup returns the registry entry for state.
func Lookup(state model.WorkflowState) (Info, bool) {
	info, ok := registry[state]
	if !ok {
		return Info{}, false
	}
	info.State = state
	return info, true
}

// All returns the entries for the canonical states in lifecycle order.
func All() []Info {
	out := make([]Info, 0, len(model.AllStates))
	for _, st := range model.AllStates {
		info, _ := Lookup(st)
		out = append(out, info)
	}
	return out
}

// AwaitingRole returns the role expected to act on a submission in state.
func AwaitingRole(state model.WorkflowState) (model.Role, bool) {
	r, ok := awaiting[state]
	return r, ok
}
