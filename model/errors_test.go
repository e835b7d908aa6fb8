package model

import (
	"fmt"
	"testing"
)

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Submission not found"}
	want := "NOT_FOUND: Submission not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestErrorCode_unwraps(t *testing.T) {
	err := fmt.Errorf("apply: %w", NewTerminalStateError(StateApproved, ActionApprove))
	if got := ErrorCode(err); got != ErrTerminalState {
		t.Errorf("ErrorCode() = %q, want %q", got, ErrTerminalState)
	}
	if !IsCode(err, ErrTerminalState) {
		t.Error("IsCode(TERMINAL_STATE) = false, want true")
	}
}

func TestErrorCode_plainError(t *testing.T) {
	if got := ErrorCode(fmt.Errorf("boom")); got != "" {
		t.Errorf("ErrorCode() = %q, want empty", got)
	}
	if IsCode(nil, ErrNotFound) {
		t.Error("IsCode(nil) = true, want false")
	}
}

func TestNewIllegalTransitionError(t *testing.T) {
	e := NewIllegalTransitionError(StateDraft, ActionApprove, RoleNodalOfficer)
	if e.Code != ErrIllegalTransition {
		t.Errorf("Code = %q, want %q", e.Code, ErrIllegalTransition)
	}
}

func TestNewInvalidCommentError_details(t *testing.T) {
	e := NewInvalidCommentError(ActionStateReject, []string{"too short", "profanity"})
	if e.Code != ErrInvalidComment {
		t.Errorf("Code = %q, want %q", e.Code, ErrInvalidComment)
	}
	if len(e.Details) != 2 {
		t.Fatalf("Details = %d entries, want 2", len(e.Details))
	}
	if e.Details[0].Field != "comment" || e.Details[0].Message != "too short" {
		t.Errorf("Details[0] = %+v", e.Details[0])
	}
}

func TestNewMissingCommentError(t *testing.T) {
	e := NewMissingCommentError(ActionFinalReject)
	if e.Code != ErrMissingComment {
		t.Errorf("Code = %q, want %q", e.Code, ErrMissingComment)
	}
	if len(e.Details) != 1 {
		t.Errorf("Details = %d entries, want 1", len(e.Details))
	}
}

func TestNewUnknownFieldError(t *testing.T) {
	e := NewUnknownFieldError([]string{"foo", "bar"})
	if e.Code != ErrUnknownField {
		t.Errorf("Code = %q, want %q", e.Code, ErrUnknownField)
	}
	if len(e.Details) != 2 || e.Details[1].Field != "bar" {
		t.Errorf("Details = %+v", e.Details)
	}
}

func TestNewValidationError(t *testing.T) {
	details := []FieldError{
		{Field: "state_ut_id", Code: "REQUIRED", Message: "state_ut_id is required"},
	}
	e := NewValidationError(details)
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Errorf("Details = %d entries, want 1", len(e.Details))
	}
}
