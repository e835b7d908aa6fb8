// Package access decides which workflow states each role may list and read.
package access

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/readiness/model"
)

// UnknownRolePolicy decides what a role outside the table may see.
type UnknownRolePolicy string

const (
	// UnknownRoleDeny gives unknown roles an empty state set.
	UnknownRoleDeny UnknownRolePolicy = "deny"
	// UnknownRoleAllow gives unknown roles an unrestricted filter.
	UnknownRoleAllow UnknownRolePolicy = "allow"
)

// DefaultTable returns the built-in role to visible-state table.
func DefaultTable() map[model.Role][]model.WorkflowState {
	return map[model.Role][]model.WorkflowState{
		model.RoleNodalOfficer: {
			model.StateDraft,
			model.StateRejectedFinal,
			model.StateRejected,
			model.StateApproved,
			model.StateSubmittedToState,
			model.StateSubmittedToMOSPIReviewer,
			model.StateSubmittedToMOSPIApprover,
			model.StateReturnedFromState,
		},
		model.RoleStateApprover: {
			model.StateSubmittedToState,
			model.StateReturnedFromMOSPI,
			model.StateRejected,
			model.StateSubmittedToMOSPIReviewer,
			model.StateSubmittedToMOSPIApprover,
			model.StateApproved,
		},
		model.RoleMOSPIReviewer: {
			model.StateSubmittedToMOSPIReviewer,
			model.StateSubmittedToMOSPIApprover,
			model.StateRejectedFinal,
			model.StateApproved,
			model.StateReturnedFromMOSPI,
		},
		model.RoleMOSPIApprover: {
			model.StateSubmittedToMOSPIApprover,
			model.StateApproved,
			model.StateRejectedFinal,
			model.StateReturnedFromMOSPI,
		},
	}
}

// Filter is the list-query restriction for a role. When Unrestricted is
// true, States is empty and the caller must not filter by state.
type Filter struct {
	States       []model.WorkflowState `json:"states"`
	Unrestricted bool                  `json:"unrestricted"`
}

// Matches reports whether a submission in state passes the filter.
func (f Filter) Matches(state model.WorkflowState) bool {
	if f.Unrestricted {
		return true
	}
	for _, st := range f.States {
		if st == state {
			return true
		}
	}
	return false
}

type policyFile struct {
	UnknownRole UnknownRolePolicy   `yaml:"unknown_role"`
	Roles       map[string][]string `yaml:"roles"`
}

// Policy resolves visible states per role. It is safe for concurrent use;
// Sync swaps the table under a write lock.
type Policy struct {
	path    string
	mu      sync.RWMutex
	table   map[model.Role]model.StateSet
	unknown UnknownRolePolicy
}

// Option configures a Policy.
type Option func(*Policy)

// WithUnknownRolePolicy sets the behaviour for roles outside the table.
func WithUnknownRolePolicy(p UnknownRolePolicy) Option {
	return func(pol *Policy) { pol.unknown = p }
}

// New creates a Policy over the built-in table. Unknown roles are denied
// unless configured otherwise.
func New(opts ...Option) *Policy {
	p := &Policy{
		table:   buildTable(DefaultTable()),
		unknown: UnknownRoleDeny,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromFile creates a Policy whose table is read from a YAML file of the
// form {unknown_role: deny|allow, roles: {ROLE: [STATE, ...]}}. Roles the
// file omits keep their built-in entry.
func NewFromFile(path string, opts ...Option) (*Policy, error) {
	p := New(opts...)
	p.path = path
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// Sync reloads the policy file from disk. It is a no-op for a Policy built
// without a file.
func (p *Policy) Sync() error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("access: reading policy file %s: %w", p.path, err)
	}

	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("access: parsing policy file %s: %w", p.path, err)
	}

	raw := DefaultTable()
	for name, states := range f.Roles {
		role, err := model.ParseRole(name)
		if err != nil {
			return fmt.Errorf("access: policy file %s: %w", p.path, err)
		}
		parsed := make([]model.WorkflowState, 0, len(states))
		for _, s := range states {
			st := model.WorkflowState(s)
			if st != model.StateReturnedFromMOSPI {
				if st, err = model.ParseState(s); err != nil {
					return fmt.Errorf("access: policy file %s: role %s: %w", p.path, name, err)
				}
			}
			parsed = append(parsed, st)
		}
		raw[role] = parsed
	}

	unknown := p.unknown
	switch f.UnknownRole {
	case "":
	case UnknownRoleDeny, UnknownRoleAllow:
		unknown = f.UnknownRole
	default:
		return fmt.Errorf("access: policy file %s: unknown_role must be deny or allow, got %q", p.path, f.UnknownRole)
	}

	table := buildTable(raw)
	p.mu.Lock()
	p.table = table
	p.unknown = unknown
	p.mu.Unlock()
	return nil
}

// buildTable turns the raw lists into sets, expanding the legacy combined
// MoSPI return state into the two canonical ones.
func buildTable(raw map[model.Role][]model.WorkflowState) map[model.Role]model.StateSet {
	table := make(map[model.Role]model.StateSet, len(raw))
	for role, states := range raw {
		set := model.NewStateSet(states...)
		if set.Has(model.StateReturnedFromMOSPI) {
			set[model.StateReturnedFromMOSPIReviewer] = true
			set[model.StateReturnedFromMOSPIApprover] = true
		}
		table[role] = set
	}
	return table
}

// VisibleStates returns the states role may list. The result is a copy.
// Roles outside the table get an empty set regardless of the unknown-role
// policy; use Filter to build queries.
func (p *Policy) VisibleStates(role model.Role) model.StateSet {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(model.StateSet, len(p.table[role]))
	for st := range p.table[role] {
		out[st] = true
	}
	return out
}

// Filter returns the list-query restriction for role.
func (p *Policy) Filter(role model.Role) Filter {
	p.mu.RLock()
	set, known := p.table[role]
	unknown := p.unknown
	p.mu.RUnlock()

	if !known {
		if unknown == UnknownRoleAllow {
			return Filter{Unrestricted: true}
		}
		return Filter{States: []model.WorkflowState{}}
	}
	return Filter{States: set.Sorted()}
}

// CanRead reports whether role may read a submission in state. Roles
// outside the table are always refused; the unknown-role policy only
// widens list filters.
func (p *Policy) CanRead(role model.Role, state model.WorkflowState) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	set, ok := p.table[role]
	return ok && set.Has(state)
}

// UnknownRole returns the active unknown-role policy.
func (p *Policy) UnknownRole() UnknownRolePolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.unknown
}
