package db

import (
	"context"
	"time"
	"unicode/utf8"

	"eduplatform/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	// maxStoredErrorLen keeps a runaway wrapped error from bloating the
	// error column; the full text is in the run's log line.
	maxStoredErrorLen = 2000
)

// JobRun is one job_history row. DurationMS is derived, nil while the run
// is still going.
type JobRun struct {
	ID         int64      `json:"id"`
	JobType    string     `json:"job_type"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	Status     string     `json:"status"`
	Items      int        `json:"items_count"`
	Error      *string    `json:"error,omitempty"`
}

// JobHistoryRepository records one row per lifecycle run. GET
// /v1/admin/inactivity/runs and `job-runner history` read it back.
type JobHistoryRepository struct {
	db DBTX
}

func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Start opens a 'running' row and returns its id for Finish.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, started_at, status) VALUES ($1, NOW(), 'running') RETURNING id`,
		jobType,
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes the row with 'success' or 'failed'. jobErr, when set, is
// stored truncated.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var msg *string
	if jobErr != nil {
		s := truncateRunes(jobErr.Error(), maxStoredErrorLen)
		msg = &s
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE job_history SET finished_at = NOW(), status = $2, items_count = $3, error = $4 WHERE id = $1`,
		id, status, items, msg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}

// Recent returns up to limit runs of jobType, newest first. limit is
// clamped to [1, 100] with 20 for a non-positive value.
func (r *JobHistoryRepository) Recent(ctx context.Context, jobType string, limit int) ([]JobRun, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, job_type, started_at, finished_at, status, items_count, error
		   FROM job_history
		  WHERE job_type = $1
		  ORDER BY started_at DESC
		  LIMIT $2`,
		jobType, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query job history", err)
	}
	defer rows.Close()

	runs := make([]JobRun, 0, limit)
	for rows.Next() {
		var jr JobRun
		if err := rows.Scan(&jr.ID, &jr.JobType, &jr.StartedAt, &jr.FinishedAt, &jr.Status, &jr.Items, &jr.Error); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job history row", err)
		}
		if jr.FinishedAt != nil {
			ms := jr.FinishedAt.Sub(jr.StartedAt).Milliseconds()
			jr.DurationMS = &ms
		}
		runs = append(runs, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating job history", err)
	}
	return runs, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
