package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseState(t *testing.T) {
	for _, st := range AllStates {
		got, err := ParseState(string(st))
		if err != nil || got != st {
			t.Errorf("ParseState(%q) = %q, %v", st, got, err)
		}
	}
	if _, err := ParseState("RETURNED_FROM_MOSPI"); err == nil {
		t.Error("ParseState(legacy value) should fail")
	}
	if _, err := ParseState("submitted_to_state"); err == nil {
		t.Error("ParseState is case sensitive")
	}
}

func TestWorkflowState_IsTerminal(t *testing.T) {
	terminal := map[WorkflowState]bool{StateApproved: true, StateRejectedFinal: true}
	for _, st := range AllStates {
		if got := st.IsTerminal(); got != terminal[st] {
			t.Errorf("%s.IsTerminal() = %v, want %v", st, got, terminal[st])
		}
	}
}

func TestParseRoleAndAction(t *testing.T) {
	if _, err := ParseRole("MOSPI_APPROVER"); err != nil {
		t.Errorf("ParseRole error = %v", err)
	}
	if _, err := ParseRole("ADMIN"); err == nil {
		t.Error("ParseRole(ADMIN) should fail")
	}
	if _, err := ParseAction("final_reject"); err != nil {
		t.Errorf("ParseAction error = %v", err)
	}
	if _, err := ParseAction("delete"); err == nil {
		t.Error("ParseAction(delete) should fail")
	}
}

func TestSubmission_Clone_isDeep(t *testing.T) {
	orig := Submission{
		ID:     "SUB-2026-000001",
		Status: StateDraft,
		Comments: []ReviewComment{
			{ID: "c1", Text: "first", CreatedAt: time.Now()},
		},
	}
	orig.Data.SetSection(SectionPPPDevelopment, []IndicatorData{{
		IndicatorID:  "3.3",
		PrimaryValue: 2,
		Details:      &IndicatorDetails{Kind: "submitted_projects", Items: []DetailItem{{SerialNo: 1, Name: "a"}}},
	}})

	cp := orig.Clone()
	cp.Comments = append(cp.Comments, ReviewComment{ID: "c2"})
	cp.Comments[0].Text = "changed"
	cp.Data.PPPDevelopment[0].Details.Items[0].Name = "changed"

	if len(orig.Comments) != 1 || orig.Comments[0].Text != "first" {
		t.Errorf("original comments mutated: %+v", orig.Comments)
	}
	if orig.Data.PPPDevelopment[0].Details.Items[0].Name != "a" {
		t.Error("original details mutated")
	}
}

func TestSubmission_Clone_keepsEmptyComments(t *testing.T) {
	cp := Submission{ID: "SUB-2026-000002", Comments: []ReviewComment{}}.Clone()
	if cp.Comments == nil {
		t.Fatal("Clone turned empty comments into nil")
	}
	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !strings.Contains(string(data), `"review_comments":[]`) {
		t.Errorf("review_comments not an empty array: %s", data)
	}

	if (Submission{}).Clone().Comments != nil {
		t.Error("Clone invented comments for a nil slice")
	}
}

func TestSubmissionData_IsEmpty(t *testing.T) {
	var d SubmissionData
	if !d.IsEmpty() {
		t.Error("IsEmpty() = false on zero value")
	}
	d.SetSection(SectionInfrastructureEnablers, []IndicatorData{{IndicatorID: "4.1"}})
	if d.IsEmpty() {
		t.Error("IsEmpty() = true after SetSection")
	}
	if d.IndicatorCount() != 1 {
		t.Errorf("IndicatorCount() = %d, want 1", d.IndicatorCount())
	}
}
