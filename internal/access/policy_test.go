package access

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pitabwire/readiness/model"
)

func TestVisibleStates_defaultTable(t *testing.T) {
	p := New()

	tests := []struct {
		role model.Role
		has  []model.WorkflowState
		not  []model.WorkflowState
	}{
		{
			role: model.RoleNodalOfficer,
			has:  []model.WorkflowState{model.StateDraft, model.StateReturnedFromState, model.StateApproved, model.StateRejectedFinal},
			not:  []model.WorkflowState{model.StateReturnedFromMOSPIReviewer},
		},
		{
			role: model.RoleStateApprover,
			has:  []model.WorkflowState{model.StateSubmittedToState, model.StateRejected, model.StateReturnedFromMOSPI},
			not:  []model.WorkflowState{model.StateDraft, model.StateRejectedFinal},
		},
		{
			role: model.RoleMOSPIReviewer,
			has:  []model.WorkflowState{model.StateSubmittedToMOSPIReviewer, model.StateRejectedFinal},
			not:  []model.WorkflowState{model.StateSubmittedToState, model.StateDraft},
		},
		{
			role: model.RoleMOSPIApprover,
			has:  []model.WorkflowState{model.StateSubmittedToMOSPIApprover, model.StateApproved},
			not:  []model.WorkflowState{model.StateSubmittedToMOSPIReviewer},
		},
	}
	for _, tt := range tests {
		set := p.VisibleStates(tt.role)
		for _, st := range tt.has {
			if !set.Has(st) {
				t.Errorf("%s should see %s", tt.role, st)
			}
		}
		for _, st := range tt.not {
			if set.Has(st) {
				t.Errorf("%s should not see %s", tt.role, st)
			}
		}
	}
}

func TestVisibleStates_legacyReturnExpands(t *testing.T) {
	set := New().VisibleStates(model.RoleMOSPIApprover)
	for _, st := range []model.WorkflowState{
		model.StateReturnedFromMOSPI,
		model.StateReturnedFromMOSPIReviewer,
		model.StateReturnedFromMOSPIApprover,
	} {
		if !set.Has(st) {
			t.Errorf("MOSPI_APPROVER should see %s", st)
		}
	}
}

func TestVisibleStates_returnsCopy(t *testing.T) {
	p := New()
	set := p.VisibleStates(model.RoleMOSPIApprover)
	set[model.StateDraft] = true

	if p.VisibleStates(model.RoleMOSPIApprover).Has(model.StateDraft) {
		t.Error("mutating the returned set changed the policy")
	}
}

func TestFilter_unknownRoleDeniedByDefault(t *testing.T) {
	f := New().Filter("AUDITOR")
	if f.Unrestricted {
		t.Error("unknown role should not be unrestricted by default")
	}
	if len(f.States) != 0 {
		t.Errorf("States = %v, want empty", f.States)
	}
	if f.Matches(model.StateApproved) {
		t.Error("denied filter should match nothing")
	}
}

func TestFilter_unknownRoleAllowed(t *testing.T) {
	f := New(WithUnknownRolePolicy(UnknownRoleAllow)).Filter("AUDITOR")
	if !f.Unrestricted {
		t.Fatal("unknown role should be unrestricted under allow policy")
	}
	if !f.Matches(model.StateDraft) {
		t.Error("unrestricted filter should match every state")
	}
}

func TestFilter_sortedLifecycleOrder(t *testing.T) {
	f := New().Filter(model.RoleMOSPIApprover)
	want := []model.WorkflowState{
		model.StateSubmittedToMOSPIApprover,
		model.StateReturnedFromMOSPIReviewer,
		model.StateReturnedFromMOSPIApprover,
		model.StateRejectedFinal,
		model.StateApproved,
		model.StateReturnedFromMOSPI,
	}
	if !reflect.DeepEqual(f.States, want) {
		t.Errorf("States = %v, want %v", f.States, want)
	}
}

func TestCanRead(t *testing.T) {
	p := New()
	if !p.CanRead(model.RoleStateApprover, model.StateSubmittedToState) {
		t.Error("state approver should read SUBMITTED_TO_STATE")
	}
	if p.CanRead(model.RoleStateApprover, model.StateDraft) {
		t.Error("state approver should not read DRAFT")
	}
	if p.CanRead("", model.StateApproved) {
		t.Error("empty role should be denied")
	}
}

func TestCanRead_unknownRoleDeniedUnderAllowPolicy(t *testing.T) {
	p := New(WithUnknownRolePolicy(UnknownRoleAllow))
	for _, st := range model.AllStates {
		if p.CanRead("GUEST", st) {
			t.Errorf("CanRead(GUEST, %s) = true, want false", st)
		}
	}
}

func TestNewFromFile(t *testing.T) {
	p, err := NewFromFile("testdata/policy.yaml")
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if p.UnknownRole() != UnknownRoleAllow {
		t.Errorf("UnknownRole() = %s, want allow", p.UnknownRole())
	}
	if p.CanRead(model.RoleMOSPIApprover, model.StateRejectedFinal) {
		t.Error("overridden MOSPI_APPROVER should no longer read REJECTED_FINAL")
	}
	if !p.CanRead(model.RoleNodalOfficer, model.StateDraft) {
		t.Error("roles absent from the file should keep the built-in entry")
	}
}

func TestNewFromFile_invalid(t *testing.T) {
	for _, path := range []string{"testdata/bad_state.yaml", "testdata/bad_role.yaml", "testdata/missing.yaml"} {
		if _, err := NewFromFile(path); err == nil {
			t.Errorf("NewFromFile(%s) expected error", path)
		}
	}
}

func TestSync_reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  NODAL_OFFICER: [DRAFT]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	if p.CanRead(model.RoleNodalOfficer, model.StateApproved) {
		t.Fatal("NODAL_OFFICER should only read DRAFT")
	}

	if err := os.WriteFile(path, []byte("roles:\n  NODAL_OFFICER: [DRAFT, APPROVED]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := p.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !p.CanRead(model.RoleNodalOfficer, model.StateApproved) {
		t.Error("Sync() did not pick up the new table")
	}
}
