package lifecycle

import (
	"context"
	"time"

	"eduplatform/internal/types"
)

// AccountStore is the account persistence the engine depends on. All
// mutations are single-row and idempotent.
type AccountStore interface {
	// FindAccountsByRoles lists every account holding one of the roles.
	// A failure here means the store is unreachable and aborts the run.
	FindAccountsByRoles(ctx context.Context, roles []types.Role) ([]types.Account, error)

	// GetCreatedAt re-reads an account's creation time.
	GetCreatedAt(ctx context.Context, accountID string) (time.Time, error)

	// WriteWarnAndSchedule sets inactivity_warned_at and scheduled_deletion_at
	// together, only while both are still NULL. Returns false when another
	// writer already transitioned the account.
	WriteWarnAndSchedule(ctx context.Context, accountID string, warnedAt, scheduledAt time.Time) (bool, error)

	// DeleteAccount removes the account. Returns false if it did not exist.
	DeleteAccount(ctx context.Context, accountID string) (bool, error)
}

// SignalSource returns the latest activity timestamp of a given kind for an
// account, or nil when the account has no such activity.
type SignalSource interface {
	LastSignalTimestamp(ctx context.Context, accountID string, kind types.SignalKind) (*time.Time, error)
}

// Notifier delivers the inactivity warning. An error leaves the account
// unwarned so the next run retries it.
type Notifier interface {
	SendInactivityWarning(ctx context.Context, warning types.InactivityWarning) error
}

// LinkBuilder resolves the page an inactive user should visit to keep the
// account. It always returns a usable URL.
type LinkBuilder interface {
	ResourceLink(acct types.Account) string
}

// RunMetrics records the outcome of a cleanup run. Implementations must not
// block the run on telemetry failures.
type RunMetrics interface {
	RecordRun(ctx context.Context, trigger string, summary RunSummary, duration time.Duration, runErr error)
}
