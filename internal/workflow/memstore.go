package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pitabwire/readiness/model"
)

// MemorySubmissionStore is an in-memory SubmissionStore for tests and the
// single-process CLI.
type MemorySubmissionStore struct {
	mu          sync.RWMutex
	submissions map[string]model.Submission // key: submission ID
}

// NewMemorySubmissionStore creates a new in-memory submission store.
func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{
		submissions: make(map[string]model.Submission),
	}
}

// Create persists a new submission.
func (s *MemorySubmissionStore) Create(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[sub.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("submission %q already exists", sub.ID),
		)
	}

	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// Get retrieves a submission by ID.
func (s *MemorySubmissionStore) Get(_ context.Context, id string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.submissions[id]
	if !exists {
		return model.Submission{}, model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", id),
		)
	}
	return sub.Clone(), nil
}

// Update persists a modified submission with optimistic locking.
func (s *MemorySubmissionStore) Update(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.submissions[sub.ID]
	if !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", sub.ID),
		)
	}

	if existing.Version != sub.Version {
		return model.NewConflictError(
			fmt.Sprintf("submission %q version conflict (expected %d, got %d)", sub.ID, sub.Version, existing.Version),
		)
	}

	stored := sub.Clone()
	stored.Version++
	s.submissions[sub.ID] = stored
	return nil
}

// List returns submissions matching the filters, newest first.
func (s *MemorySubmissionStore) List(_ context.Context, filters SubmissionFilters) ([]model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := model.NewStateSet(filters.States...)

	var result []model.Submission
	for _, sub := range s.submissions {
		if len(states) > 0 && !states.Has(sub.Status) {
			continue
		}
		if filters.StateUTID != "" && sub.StateUTID != filters.StateUTID {
			continue
		}
		if filters.SubmittedBy != "" && sub.SubmittedByUserID != filters.SubmittedBy {
			continue
		}
		result = append(result, sub.Clone())
	}

	// Newest first; ID breaks ties so paging is stable.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.Submission{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// Delete removes a submission.
func (s *MemorySubmissionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.submissions[id]; !exists {
		return model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", id),
		)
	}
	delete(s.submissions, id)
	return nil
}

// Ping always succeeds.
func (s *MemorySubmissionStore) Ping(context.Context) error { return nil }

// Len returns the number of stored submissions. For testing.
func (s *MemorySubmissionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.submissions)
}
