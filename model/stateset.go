package model

import "sort"

// StateSet is a set of workflow states, used for list filters and read
// access checks.
type StateSet map[WorkflowState]bool

// NewStateSet builds a set from the given states. Duplicates collapse.
func NewStateSet(states ...WorkflowState) StateSet {
	s := make(StateSet, len(states))
	for _, st := range states {
		s[st] = true
	}
	return s
}

// Has returns true if the set contains the state.
func (s StateSet) Has(st WorkflowState) bool {
	return s[st]
}

// HasAny returns true if the set contains at least one of the given states.
func (s StateSet) HasAny(states ...WorkflowState) bool {
	for _, st := range states {
		if s[st] {
			return true
		}
	}
	return false
}

// Sorted returns the members in a stable order: canonical lifecycle order
// first, then any non-canonical values alphabetically.
func (s StateSet) Sorted() []WorkflowState {
	out := make([]WorkflowState, 0, len(s))
	seen := make(map[WorkflowState]bool, len(s))
	for _, st := range AllStates {
		if s[st] {
			out = append(out, st)
			seen[st] = true
		}
	}
	var extra []WorkflowState
	for st := range s {
		if !seen[st] && s[st] {
			extra = append(extra, st)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Strings returns Sorted as plain strings.
func (s StateSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, st := range sorted {
		out[i] = string(st)
	}
	return out
}
