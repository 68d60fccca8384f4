package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eduplatform/internal/types"
)

// roleSignals maps each participating role to the activity that counts for it.
// Roles absent from the map never query a signal source.
var roleSignals = map[types.Role]types.SignalKind{
	types.RoleStudent:   types.SignalSubmission,
	types.RoleProfessor: types.SignalTaskCreation,
}

// CreatedAtReader re-reads an account's creation time when the listed
// record carried none.
type CreatedAtReader interface {
	GetCreatedAt(ctx context.Context, accountID string) (time.Time, error)
}

// ActivityResolver computes the most recent meaningful activity of an account.
type ActivityResolver struct {
	signals  SignalSource
	accounts CreatedAtReader
	now      func() time.Time
	logger   *slog.Logger
}

// NewActivityResolver creates a resolver. accounts may be nil, in which case
// a missing creation time falls straight back to the current time.
func NewActivityResolver(signals SignalSource, accounts CreatedAtReader, now func() time.Time, logger *slog.Logger) *ActivityResolver {
	if now == nil {
		now = utcNow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityResolver{
		signals:  signals,
		accounts: accounts,
		now:      now,
		logger:   logger,
	}
}

// Resolve returns the account's last activity: the latest signal for its
// role, or fallbackCreatedAt when there is none.
func (r *ActivityResolver) Resolve(ctx context.Context, accountID string, role types.Role, fallbackCreatedAt time.Time) (time.Time, error) {
	return r.ResolveAt(ctx, accountID, role, fallbackCreatedAt, r.now())
}

// ResolveAt is Resolve with an explicit reference time, used as the floor
// of last resort when the account has no usable creation time.
func (r *ActivityResolver) ResolveAt(ctx context.Context, accountID string, role types.Role, fallbackCreatedAt, now time.Time) (time.Time, error) {
	kind, ok := roleSignals[role]
	if !ok {
		return r.floor(ctx, accountID, fallbackCreatedAt, now), nil
	}

	ts, err := r.signals.LastSignalTimestamp(ctx, accountID, kind)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving %s activity for account %s: %w", kind, accountID, err)
	}
	if ts == nil || ts.IsZero() {
		return r.floor(ctx, accountID, fallbackCreatedAt, now), nil
	}
	return ts.UTC(), nil
}

// floor returns the creation time to use when no activity signal exists.
// A missing creation time is an anomaly: it is re-read from the store, and
// only if that fails too is now substituted so classification cannot fail.
func (r *ActivityResolver) floor(ctx context.Context, accountID string, fallbackCreatedAt, now time.Time) time.Time {
	if !fallbackCreatedAt.IsZero() {
		return fallbackCreatedAt.UTC()
	}

	if r.accounts != nil {
		createdAt, err := r.accounts.GetCreatedAt(ctx, accountID)
		if err == nil && !createdAt.IsZero() {
			r.logger.WarnContext(ctx, "anomalous account: listed record had no created_at, using stored value",
				"account_id", accountID,
				"created_at", createdAt,
			)
			return createdAt.UTC()
		}
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to re-read account created_at",
				"account_id", accountID,
				"error", err,
			)
		}
	}

	r.logger.WarnContext(ctx, "anomalous account: no creation time, using current time as activity floor",
		"account_id", accountID,
		"floor", now,
	)
	return now
}

func utcNow() time.Time {
	return time.Now().UTC()
}
