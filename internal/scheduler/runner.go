package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eduplatform/internal/db"
	"eduplatform/internal/lifecycle"
	"eduplatform/internal/types"
)

// ErrLockHeld is returned by RunExclusive when another worker holds the
// lifecycle lock. It maps to HTTP 409.
var ErrLockHeld = types.NewAppError(
	types.ErrCodeConflictRunInProgress,
	"an inactivity run is already in progress",
	nil,
)

// JobLocker provides distributed locking for scheduled jobs.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) (bool, error)
}

// JobHistorian records job execution history for observability.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
	Recent(ctx context.Context, jobType string, limit int) ([]db.JobRun, error)
}

// JobFunc is the body of an exclusive job. It returns the number of items
// it processed.
type JobFunc func(ctx context.Context) (int, error)

// Runner serializes lifecycle jobs across processes.
type Runner struct {
	lock     JobLocker
	history  JobHistorian
	workerID string
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a Runner with a fresh worker identity. A non-positive
// lockTTL uses DefaultLockTTL.
func NewRunner(lock JobLocker, history JobHistorian, lockTTL time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Runner{
		lock:     lock,
		history:  history,
		workerID: uuid.New().String(),
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

// WorkerID returns the lock owner identity of this process.
func (r *Runner) WorkerID() string {
	return r.workerID
}

// RunExclusive runs fn while holding the lifecycle lock and records the run
// in job_history. ErrLockHeld is returned without calling fn when another
// worker holds the lock.
//
// A history failure does not stop the job; the run is still executed and
// only the bookkeeping is lost.
func (r *Runner) RunExclusive(ctx context.Context, task TaskType, fn JobFunc) (int, error) {
	taskStr := string(task)

	acquired, err := r.lock.Acquire(ctx, InactivityLockID, r.workerID, r.lockTTL)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", InactivityLockID,
			"task", taskStr,
			"error", err,
		)
		return 0, fmt.Errorf("acquiring job lock %s: %w", InactivityLockID, err)
	}
	if !acquired {
		r.logger.InfoContext(ctx, "job lock not acquired, another worker is processing",
			"lock_id", InactivityLockID,
			"task", taskStr,
		)
		return 0, ErrLockHeld
	}

	defer func() {
		// The lock must go even when the caller's context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := r.lock.Release(releaseCtx, InactivityLockID, r.workerID); err != nil {
			r.logger.WarnContext(ctx, "failed to release job lock, it will expire",
				"lock_id", InactivityLockID,
				"ttl", r.lockTTL.String(),
				"error", err,
			)
		}
	}()

	jobID, err := r.history.Start(ctx, taskStr)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to start job history",
			"task", taskStr,
			"error", err,
		)
		jobID = 0
	}

	items, execErr := fn(ctx)

	status := "success"
	if execErr != nil {
		status = "failed"
	}
	if jobID != 0 {
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if finishErr := r.history.Finish(finishCtx, jobID, status, items, execErr); finishErr != nil {
			r.logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", finishErr,
			)
		}
		cancel()
	}

	if execErr != nil {
		return items, fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}
	return items, nil
}

// Recent lists the latest recorded runs of task, newest first.
func (r *Runner) Recent(ctx context.Context, task TaskType, limit int) ([]db.JobRun, error) {
	return r.history.Recent(ctx, string(task), limit)
}

// Every calls job immediately and then on every tick of interval until ctx
// is done. A held lock is expected when several replicas share the
// schedule and is logged at debug level. It returns ctx.Err().
func (r *Runner) Every(ctx context.Context, interval time.Duration, job func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "lifecycle schedule started",
		"interval", interval.String(),
		"worker_id", r.workerID,
	)

	for {
		if err := job(ctx); err != nil {
			if errors.Is(err, ErrLockHeld) {
				r.logger.DebugContext(ctx, "scheduled run skipped, lock held")
			} else if ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "scheduled run failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "lifecycle schedule stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cleaner runs one cleanup pass. Satisfied by *lifecycle.Engine.
type Cleaner interface {
	Run(ctx context.Context, params lifecycle.RunParams) (lifecycle.RunSummary, error)
}

// CleanupJob adapts an engine run to a JobFunc. The summary of the last
// call is stored in out when out is non-nil; warned plus deleted is the
// recorded item count.
func CleanupJob(engine Cleaner, params lifecycle.RunParams, out *lifecycle.RunSummary) JobFunc {
	return func(ctx context.Context) (int, error) {
		summary, err := engine.Run(ctx, params)
		if out != nil {
			*out = summary
		}
		return summary.Warned + summary.Deleted, err
	}
}
