package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest      = "BAD_REQUEST"
	ErrNotFound        = "NOT_FOUND"
	ErrConflict        = "CONFLICT"
	ErrValidationError = "VALIDATION_ERROR"
	ErrInternalError   = "INTERNAL_ERROR"
)

// Workflow-specific error codes.
const (
	ErrIllegalTransition = "ILLEGAL_TRANSITION"
	ErrTerminalState     = "TERMINAL_STATE"
	ErrMissingComment    = "MISSING_COMMENT"
	ErrInvalidComment    = "INVALID_COMMENT"
	ErrUnknownField      = "UNKNOWN_FIELD"
)

// ErrorEnvelope is the typed failure returned by every entry point.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode returns the envelope code carried by err, or "" when err is not
// (and does not wrap) an *ErrorEnvelope.
func ErrorCode(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

// IsCode reports whether err carries the given envelope code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "Submission failed validation",
		Details: details,
	}
}

// NewUnknownFieldError returns an UNKNOWN_FIELD error listing every flat
// form key that has no catalogue entry.
func NewUnknownFieldError(keys []string) *ErrorEnvelope {
	details := make([]FieldError, 0, len(keys))
	for _, k := range keys {
		details = append(details, FieldError{
			Field:   k,
			Code:    ErrUnknownField,
			Message: fmt.Sprintf("field %q is not in the indicator catalogue", k),
		})
	}
	return &ErrorEnvelope{
		Code:    ErrUnknownField,
		Message: "Form contains fields outside the indicator catalogue",
		Details: details,
	}
}

// NewIllegalTransitionError returns an ILLEGAL_TRANSITION error.
func NewIllegalTransitionError(state WorkflowState, action Action, role Role) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrIllegalTransition,
		Message: fmt.Sprintf("action %q is not permitted for role %s in state %s", action, role, state),
	}
}

// NewTerminalStateError returns a TERMINAL_STATE error.
func NewTerminalStateError(state WorkflowState, action Action) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrTerminalState,
		Message: fmt.Sprintf("submission is %s; action %q is not permitted", state, action),
	}
}

// NewMissingCommentError returns a MISSING_COMMENT error.
func NewMissingCommentError(action Action) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrMissingComment,
		Message: fmt.Sprintf("action %q requires a comment", action),
		Details: []FieldError{{Field: "comment", Code: ErrMissingComment, Message: "Comment is required"}},
	}
}

// NewInvalidCommentError returns an INVALID_COMMENT error carrying every
// validator error so the caller can re-prompt.
func NewInvalidCommentError(action Action, problems []string) *ErrorEnvelope {
	details := make([]FieldError, 0, len(problems))
	for _, p := range problems {
		details = append(details, FieldError{Field: "comment", Code: ErrInvalidComment, Message: p})
	}
	return &ErrorEnvelope{
		Code:    ErrInvalidComment,
		Message: fmt.Sprintf("comment for action %q failed validation", action),
		Details: details,
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}
