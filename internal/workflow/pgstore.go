package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/readiness/model"
)

// Schema creates the submissions table used by PgSubmissionStore.
const Schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id                   TEXT PRIMARY KEY,
	state_ut_id          TEXT NOT NULL,
	submitted_by_user_id TEXT NOT NULL,
	status               TEXT NOT NULL,
	data                 JSONB NOT NULL,
	comments             JSONB NOT NULL DEFAULT '[]',
	rejection_count      INTEGER NOT NULL DEFAULT 0,
	version              INTEGER NOT NULL DEFAULT 1,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_status_idx ON submissions (status);
CREATE INDEX IF NOT EXISTS submissions_state_ut_idx ON submissions (state_ut_id);
`

const submissionColumns = `id, state_ut_id, submitted_by_user_id, status, data, comments,
	       rejection_count, version, created_at, updated_at`

// PgSubmissionStore is a PostgreSQL-backed SubmissionStore using pgx/v5.
type PgSubmissionStore struct {
	pool *pgxpool.Pool
}

// NewPgSubmissionStore creates a new PostgreSQL submission store.
func NewPgSubmissionStore(pool *pgxpool.Pool) *PgSubmissionStore {
	return &PgSubmissionStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PgSubmissionStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate submissions schema: %w", err)
	}
	return nil
}

// Create inserts a new submission.
func (s *PgSubmissionStore) Create(ctx context.Context, sub model.Submission) error {
	dataJSON, commentsJSON, err := marshalSubmission(sub)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (
			id, state_ut_id, submitted_by_user_id, status, data, comments,
			rejection_count, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		sub.ID, sub.StateUTID, sub.SubmittedByUserID, sub.Status, dataJSON, commentsJSON,
		sub.RejectionCount, sub.Version, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf("submission %q already exists", sub.ID))
	}
	return nil
}

// Get retrieves a submission by ID.
func (s *PgSubmissionStore) Get(ctx context.Context, id string) (model.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Submission{}, model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", id),
		)
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("query submission: %w", err)
	}
	return sub, nil
}

// Update persists a modified submission with optimistic locking.
func (s *PgSubmissionStore) Update(ctx context.Context, sub model.Submission) error {
	dataJSON, commentsJSON, err := marshalSubmission(sub)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET
			status = $1,
			data = $2,
			comments = $3,
			rejection_count = $4,
			version = $5,
			updated_at = $6
		WHERE id = $7 AND version = $8`,
		sub.Status, dataJSON, commentsJSON, sub.RejectionCount, sub.Version+1,
		sub.UpdatedAt, sub.ID, sub.Version,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := s.Get(ctx, sub.ID); err != nil {
			return err
		}
		return model.NewConflictError(
			fmt.Sprintf("submission %q version conflict (expected %d)", sub.ID, sub.Version),
		)
	}
	return nil
}

// List returns submissions matching the filters, newest first.
func (s *PgSubmissionStore) List(ctx context.Context, filters SubmissionFilters) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE TRUE`
	var args []any
	argIdx := 1

	if len(filters.States) > 0 {
		states := make([]string, len(filters.States))
		for i, st := range filters.States {
			states[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, states)
		argIdx++
	}
	if filters.StateUTID != "" {
		query += fmt.Sprintf(" AND state_ut_id = $%d", argIdx)
		args = append(args, filters.StateUTID)
		argIdx++
	}
	if filters.SubmittedBy != "" {
		query += fmt.Sprintf(" AND submitted_by_user_id = $%d", argIdx)
		args = append(args, filters.SubmittedBy)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Delete removes a submission.
func (s *PgSubmissionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("submission %q not found", id),
		)
	}
	return nil
}

// Ping checks the database connection.
func (s *PgSubmissionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func marshalSubmission(sub model.Submission) (data, comments []byte, err error) {
	data, err = json.Marshal(sub.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal submission data: %w", err)
	}
	c := sub.Comments
	if c == nil {
		c = []model.ReviewComment{}
	}
	comments, err = json.Marshal(c)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal review comments: %w", err)
	}
	return data, comments, nil
}

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var sub model.Submission
	var dataJSON, commentsJSON []byte
	if err := row.Scan(
		&sub.ID, &sub.StateUTID, &sub.SubmittedByUserID, &sub.Status, &dataJSON, &commentsJSON,
		&sub.RejectionCount, &sub.Version, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return model.Submission{}, err
	}
	if err := json.Unmarshal(dataJSON, &sub.Data); err != nil {
		return model.Submission{}, fmt.Errorf("unmarshal submission data: %w", err)
	}
	if err := json.Unmarshal(commentsJSON, &sub.Comments); err != nil {
		return model.Submission{}, fmt.Errorf("unmarshal review comments: %w", err)
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}
