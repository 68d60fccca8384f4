package db

import (
	"context"
	"fmt"
	"time"

	"eduplatform/internal/types"
)

// ActivityRepository derives activity timestamps from the content tables.
// It never writes.
type ActivityRepository struct {
	db DBTX
}

// NewActivityRepository creates a new ActivityRepository backed by the
// given database connection (pool or transaction).
func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// signalQueries holds one aggregate per signal kind. Each returns a single
// nullable timestamp: NULL when the account has no qualifying record.
var signalQueries = map[types.SignalKind]string{
	// Drafts are not evidence of activity; only finalized essays count.
	types.SignalSubmission: `SELECT MAX(COALESCE(e.submitted_at, e.created_at))
		 FROM essays e
		 WHERE e.student_id = $1 AND e.status <> 'draft'`,

	types.SignalTaskCreation: `SELECT MAX(t.created_at)
		 FROM tasks t
		 JOIN rooms r ON r.id = t.room_id
		 WHERE r.professor_id = $1`,
}

// LastSignalTimestamp returns the most recent activity of the given kind for
// the account, or nil when none exists.
func (r *ActivityRepository) LastSignalTimestamp(ctx context.Context, accountID string, kind types.SignalKind) (*time.Time, error) {
	query, ok := signalQueries[kind]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("unsupported activity signal %q", kind), nil)
	}

	var ts *time.Time
	if err := r.db.QueryRow(ctx, query, accountID).Scan(&ts); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query last activity", err)
	}
	if ts == nil {
		return nil, nil
	}
	utc := ts.UTC()
	return &utc, nil
}
