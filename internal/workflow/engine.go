package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/readiness/internal/access"
	"github.com/pitabwire/readiness/internal/comment"
	"github.com/pitabwire/readiness/model"
)

// Rule is one row of the transition table.
type Rule struct {
	To              model.WorkflowState
	CommentRequired bool
	CommentKind     model.CommentKind
	Preset          comment.Preset
	CountsRejection bool
}

type ruleKey struct {
	From   model.WorkflowState
	Action model.Action
	Role   model.Role
}

// transitions is the complete lifecycle table. add_comment is handled
// separately because it applies to every readable state.
var transitions = map[ruleKey]Rule{
	{model.StateDraft, model.ActionSubmitToState, model.RoleNodalOfficer}: {
		To: model.StateSubmittedToState, CommentKind: model.CommentKindComment, Preset: comment.PresetApproval,
	},
	{model.StateSubmittedToState, model.ActionForwardToMOSPI, model.RoleStateApprover}: {
		To: model.StateSubmittedToMOSPIReviewer, CommentKind: model.CommentKindApproval, Preset: comment.PresetApproval,
	},
	{model.StateSubmittedToState, model.ActionStateReject, model.RoleStateApprover}: {
		To: model.StateReturnedFromState, CommentRequired: true, CommentKind: model.CommentKindRejection,
		Preset: comment.PresetRejection, CountsRejection: true,
	},
	{model.StateSubmittedToMOSPIReviewer, model.ActionForwardToMOSPIApprover, model.RoleMOSPIReviewer}: {
		To: model.StateSubmittedToMOSPIApprover, CommentKind: model.CommentKindApproval, Preset: comment.PresetApproval,
	},
	{model.StateSubmittedToMOSPIReviewer, model.ActionFinalReject, model.RoleMOSPIReviewer}: {
		To: model.StateRejectedFinal, CommentRequired: true, CommentKind: model.CommentKindRejection,
		Preset: comment.PresetRejection, CountsRejection: true,
	},
	{model.StateSubmittedToMOSPIApprover, model.ActionApprove, model.RoleMOSPIApprover}: {
		To: model.StateApproved, CommentKind: model.CommentKindApproval, Preset: comment.PresetApproval,
	},
	{model.StateSubmittedToMOSPIApprover, model.ActionFinalReject, model.RoleMOSPIApprover}: {
		To: model.StateRejectedFinal, CommentRequired: true, CommentKind: model.CommentKindRejection,
		Preset: comment.PresetRejection, CountsRejection: true,
	},
	{model.StateReturnedFromState, model.ActionResubmit, model.RoleNodalOfficer}: {
		To: model.StateSubmittedToState, CommentKind: model.CommentKindComment, Preset: comment.PresetApproval,
	},
	{model.StateRejected, model.ActionResubmit, model.RoleNodalOfficer}: {
		To: model.StateSubmittedToState, CommentKind: model.CommentKindComment, Preset: comment.PresetApproval,
	},
}

var addCommentRule = Rule{
	CommentRequired: true,
	CommentKind:     model.CommentKindComment,
	Preset:          comment.PresetGeneral,
}

// LookupRule returns the table row for (state, action, role). add_comment
// resolves to a row that keeps the state unchanged; read access is not
// checked here.
func LookupRule(state model.WorkflowState, action model.Action, role model.Role) (Rule, bool) {
	if action == model.ActionAddComment {
		if _, err := model.ParseRole(string(role)); err != nil {
			return Rule{}, false
		}
		r := addCommentRule
		r.To = state
		return r, true
	}
	r, ok := transitions[ruleKey{From: state, Action: action, Role: role}]
	return r, ok
}

// ReadAccess answers whether a role may read a submission in a state.
type ReadAccess interface {
	CanRead(role model.Role, state model.WorkflowState) bool
}

// TransitionRequest is one requested lifecycle action.
type TransitionRequest struct {
	Action    model.Action `json:"action"`
	ActorID   string       `json:"actor_id"`
	ActorRole model.Role   `json:"actor_role"`
	Comment   string       `json:"comment,omitempty"`
	// At overrides the engine clock when non-zero.
	At time.Time `json:"at,omitzero"`
}

// TransitionResult is the outcome of a successful transition.
type TransitionResult struct {
	Submission model.Submission    `json:"submission"`
	From       model.WorkflowState `json:"from"`
	To         model.WorkflowState `json:"to"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// Engine applies lifecycle transitions to submissions. It holds no
// per-submission state and performs no locking; callers serialise
// transitions on the same submission.
type Engine struct {
	now     func() time.Time
	access  ReadAccess
	options map[comment.Preset]comment.Options
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the wall clock used when a request carries no time.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithReadAccess sets the policy that gates add_comment.
func WithReadAccess(a ReadAccess) EngineOption {
	return func(e *Engine) { e.access = a }
}

// WithCommentOptions overrides the validator options of a preset.
func WithCommentOptions(p comment.Preset, opts comment.Options) EngineOption {
	return func(e *Engine) { e.options[p] = opts }
}

// NewEngine creates an engine with the built-in access table and comment
// presets.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now:    time.Now,
		access: access.New(),
		options: map[comment.Preset]comment.Options{
			comment.PresetRejection: comment.RejectionOptions(),
			comment.PresetApproval:  comment.ApprovalOptions(),
			comment.PresetGeneral:   comment.GeneralOptions(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyTransition validates req against the transition table and returns
// the updated submission. On any failure sub is left untouched and the
// error is a *model.ErrorEnvelope.
func (e *Engine) ApplyTransition(sub model.Submission, req TransitionRequest) (TransitionResult, error) {
	from := sub.Status

	// 1. Terminal states admit nothing.
	if from.IsTerminal() {
		return TransitionResult{}, model.NewTerminalStateError(from, req.Action)
	}

	// 2. Find the rule.
	rule, ok := LookupRule(from, req.Action, req.ActorRole)
	if !ok {
		return TransitionResult{}, model.NewIllegalTransitionError(from, req.Action, req.ActorRole)
	}
	if req.Action == model.ActionAddComment && !e.access.CanRead(req.ActorRole, from) {
		return TransitionResult{}, model.NewIllegalTransitionError(from, req.Action, req.ActorRole)
	}

	// 3. Check the comment.
	text := strings.TrimSpace(req.Comment)
	var warnings []string
	if text == "" {
		if rule.CommentRequired {
			return TransitionResult{}, model.NewMissingCommentError(req.Action)
		}
	} else {
		res := comment.Validate(text, e.options[rule.Preset])
		if !res.IsValid {
			return TransitionResult{}, model.NewInvalidCommentError(req.Action, res.Errors)
		}
		warnings = res.Warnings
	}

	// 4. Apply to a copy.
	at := req.At
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()

	out := sub.Clone()
	out.Status = rule.To
	if text != "" {
		out.Comments = append(out.Comments, model.ReviewComment{
			ID:         uuid.New().String(),
			AuthorID:   req.ActorID,
			AuthorRole: req.ActorRole,
			Text:       text,
			Kind:       rule.CommentKind,
			Action:     req.Action,
			CreatedAt:  at,
		})
	}
	if rule.CountsRejection {
		out.RejectionCount++
	}
	out.UpdatedAt = at

	return TransitionResult{
		Submission: out,
		From:       from,
		To:         rule.To,
		Warnings:   warnings,
	}, nil
}

// AvailableActions lists the actions role may take on a submission in
// state, in table order. Terminal states return nil.
func (e *Engine) AvailableActions(state model.WorkflowState, role model.Role) []model.Action {
	if state.IsTerminal() {
		return nil
	}
	var out []model.Action
	for _, a := range model.AllActions {
		if a == model.ActionAddComment {
			if _, ok := LookupRule(state, a, role); ok && e.access.CanRead(role, state) {
				out = append(out, a)
			}
			continue
		}
		if _, ok := transitions[ruleKey{From: state, Action: a, Role: role}]; ok {
			out = append(out, a)
		}
	}
	return out
}
