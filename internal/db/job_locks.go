package db

import (
	"context"
	"time"

	"eduplatform/internal/types"
)

// A lock row may be taken over once expires_at has passed, so a worker that
// dies mid-run blocks the lifecycle for at most one TTL. Timestamps are
// bound from Go because Postgres cannot parse Go duration strings.
const (
	acquireLockSQL = `
INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
   SET worker_id  = EXCLUDED.worker_id,
       locked_at  = EXCLUDED.locked_at,
       expires_at = EXCLUDED.expires_at
 WHERE job_locks.expires_at < $3`

	releaseLockSQL = `DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`
)

// JobLockRepository implements the lifecycle lock on the job_locks table.
type JobLockRepository struct {
	db DBTX
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire reports true for a fresh row or a reclaimed expired one, false
// while another worker's lock is live.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, acquireLockSQL, lockID, workerID, now, now.Add(ttl))
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release reports false when the lock had already expired and moved to
// another worker; the row is then left alone.
func (r *JobLockRepository) Release(ctx context.Context, lockID, workerID string) (bool, error) {
	tag, err := r.db.Exec(ctx, releaseLockSQL, lockID, workerID)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}
