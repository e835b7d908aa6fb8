package workflow

import (
	"context"

	"github.com/pitabwire/readiness/model"
)

// SubmissionStore persists submissions. Implementations provide the
// per-submission serialisation the engine relies on through the optimistic
// version check in Update.
type SubmissionStore interface {
	// Create persists a new submission. Returns CONFLICT if the ID exists.
	Create(ctx context.Context, sub model.Submission) error

	// Get retrieves a submission by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.Submission, error)

	// Update persists a modified submission with optimistic locking. The
	// submission's Version must equal the stored version; on success the
	// stored version is incremented. Returns CONFLICT on mismatch.
	Update(ctx context.Context, sub model.Submission) error

	// List returns submissions matching the filters, newest first.
	List(ctx context.Context, filters SubmissionFilters) ([]model.Submission, error)

	// Delete removes a submission.
	Delete(ctx context.Context, id string) error

	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

// SubmissionFilters are optional filters for listing submissions. An empty
// States slice places no restriction on state.
type SubmissionFilters struct {
	States      []model.WorkflowState
	StateUTID   string
	SubmittedBy string
	Limit       int
	Offset      int
}
