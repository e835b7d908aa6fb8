package model

import "fmt"

// WorkflowState is the lifecycle state of a submission.
type WorkflowState string

// Submission workflow states.
const (
	StateDraft                     WorkflowState = "DRAFT"
	StateSubmittedToState          WorkflowState = "SUBMITTED_TO_STATE"
	StateSubmittedToMOSPIReviewer  WorkflowState = "SUBMITTED_TO_MOSPI_REVIEWER"
	StateSubmittedToMOSPIApprover  WorkflowState = "SUBMITTED_TO_MOSPI_APPROVER"
	StateReturnedFromState         WorkflowState = "RETURNED_FROM_STATE"
	StateReturnedFromMOSPIReviewer WorkflowState = "RETURNED_FROM_MOSPI_REVIEWER"
	StateReturnedFromMOSPIApprover WorkflowState = "RETURNED_FROM_MOSPI_APPROVER"
	StateRejected                  WorkflowState = "REJECTED"
	StateRejectedFinal             WorkflowState = "REJECTED_FINAL"
	StateApproved                  WorkflowState = "APPROVED"
)

// StateReturnedFromMOSPI is the legacy status value older records carry for
// a return from either MoSPI stage. It is only ever used in list filters and
// is never the target of a transition.
const StateReturnedFromMOSPI WorkflowState = "RETURNED_FROM_MOSPI"

// AllStates lists the canonical workflow states in lifecycle order.
var AllStates = []WorkflowState{
	StateDraft,
	StateSubmittedToState,
	StateSubmittedToMOSPIReviewer,
	StateSubmittedToMOSPIApprover,
	StateReturnedFromState,
	StateReturnedFromMOSPIReviewer,
	StateReturnedFromMOSPIApprover,
	StateRejected,
	StateRejectedFinal,
	StateApproved,
}

// ParseState converts a raw string to a WorkflowState, returning an error for
// values outside the canonical set.
func ParseState(s string) (WorkflowState, error) {
	st := WorkflowState(s)
	for _, known := range AllStates {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown workflow state %q", s)
}

// IsTerminal reports whether no further transition may leave the state.
func (s WorkflowState) IsTerminal() bool {
	return s == StateApproved || s == StateRejectedFinal
}

// Role is the workflow role of an actor. Every actor holds exactly one.
type Role string

// Workflow roles, in the order a submission meets them.
const (
	RoleNodalOfficer  Role = "NODAL_OFFICER"
	RoleStateApprover Role = "STATE_APPROVER"
	RoleMOSPIReviewer Role = "MOSPI_REVIEWER"
	RoleMOSPIApprover Role = "MOSPI_APPROVER"
)

// AllRoles lists the workflow roles.
var AllRoles = []Role{
	RoleNodalOfficer,
	RoleStateApprover,
	RoleMOSPIReviewer,
	RoleMOSPIApprover,
}

// ParseRole converts a raw string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	for _, known := range AllRoles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// DisplayName returns the human readable role name.
func (r Role) DisplayName() string {
	switch r {
	case RoleNodalOfficer:
		return "Nodal Officer"
	case RoleStateApprover:
		return "State Approver"
	case RoleMOSPIReviewer:
		return "MoSPI Reviewer"
	case RoleMOSPIApprover:
		return "MoSPI Approver"
	}
	return string(r)
}

// Action is a lifecycle action an actor requests on a submission.
type Action string

// Workflow actions.
const (
	ActionSubmitToState          Action = "submit_to_state"
	ActionForwardToMOSPI         Action = "forward_to_mospi"
	ActionStateReject            Action = "state_reject"
	ActionForwardToMOSPIApprover Action = "forward_to_mospi_approver"
	ActionFinalReject            Action = "final_reject"
	ActionApprove                Action = "approve"
	ActionResubmit               Action = "resubmit"
	ActionAddComment             Action = "add_comment"
)

// AllActions lists every action the engine understands.
var AllActions = []Action{
	ActionSubmitToState,
	ActionForwardToMOSPI,
	ActionStateReject,
	ActionForwardToMOSPIApprover,
	ActionFinalReject,
	ActionApprove,
	ActionResubmit,
	ActionAddComment,
}

// ParseAction converts a raw string to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	for _, known := range AllActions {
		if a == known {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}
