package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"eduplatform/internal/types"
)

// Features are the operator kill switches of the engine.
type Features struct {
	// IncludeContentOwners makes professors subject to the lifecycle.
	IncludeContentOwners bool
	// DeletionEnabled lets DeletionDue accounts actually be deleted. When
	// false the engine runs warn-only and just reports them.
	DeletionEnabled bool
}

// Dependencies wires an Engine. Accounts, Signals and Notifier are required.
type Dependencies struct {
	Accounts AccountStore
	Signals  SignalSource
	Notifier Notifier
	Links    LinkBuilder
	Metrics  RunMetrics
	Features Features
	Clock    func() time.Time
	Logger   *slog.Logger
}

// RunSummary reports the successful actions of one run.
type RunSummary struct {
	Warned  int `json:"warned"`
	Deleted int `json:"deleted"`
	Checked int `json:"checked"`
}

// Engine is the inactivity lifecycle service.
type Engine struct {
	accounts AccountStore
	resolver *ActivityResolver
	notifier Notifier
	links    LinkBuilder
	metrics  RunMetrics
	features Features
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine from its dependencies.
func NewEngine(deps Dependencies) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = utcNow
	}

	return &Engine{
		accounts: deps.Accounts,
		resolver: NewActivityResolver(deps.Signals, deps.Accounts, now, logger),
		notifier: deps.Notifier,
		links:    deps.Links,
		metrics:  deps.Metrics,
		features: deps.Features,
		now:      now,
		logger:   logger,
	}
}

// Features returns the kill switches the engine was built with.
func (e *Engine) Features() Features {
	return e.features
}

// Run performs one cleanup pass: every WarnWindow account is notified and
// scheduled (up to the warning cap), every DeletionDue account is deleted
// when deletion is enabled.
//
// Failures on a single account are logged and the account is left for the
// next run. The returned error is non-nil only when the account list cannot
// be read at all, or ctx is cancelled mid-pass (the partial summary is then
// still returned).
func (e *Engine) Run(ctx context.Context, params RunParams) (RunSummary, error) {
	start := time.Now()
	th := params.thresholds()
	limit := ClampWarningCap(params.MaxWarningsPerRun)
	now := e.referenceTime(params.Now)
	trigger := params.Trigger
	if trigger == "" {
		trigger = "unspecified"
	}

	e.logger.InfoContext(ctx, "inactivity cleanup run started",
		"trigger", trigger,
		"retention_days", th.RetentionDays,
		"warn_lead_days", th.WarnLeadDays,
		"max_warnings", limit,
		"deletion_enabled", e.features.DeletionEnabled,
		"include_professors", e.features.IncludeContentOwners,
		"reference_time", now,
	)

	var (
		summary  RunSummary
		deferred int
		retained int
	)
	checked, err := e.scan(ctx, th, now, func(c classifiedAccount) {
		switch c.Bucket {
		case BucketWarnWindow:
			if summary.Warned >= limit {
				if deferred == 0 {
					e.logger.DebugContext(ctx, "warning cap reached, remaining warn-window accounts wait for the next run",
						"max_warnings", limit,
					)
				}
				deferred++
				return
			}
			if e.warn(ctx, c, now) {
				summary.Warned++
			}

		case BucketDeletionDue:
			if !e.features.DeletionEnabled {
				retained++
				e.logger.DebugContext(ctx, "deletion due but deletion is disabled",
					"account_id", c.Account.ID,
					"scheduled_deletion_at", c.DeleteAt,
				)
				return
			}
			if e.delete(ctx, c.Account.ID) {
				summary.Deleted++
			}
		}
	})
	summary.Checked = checked

	duration := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordRun(ctx, trigger, summary, duration, err)
	}

	if err != nil {
		e.logger.ErrorContext(ctx, "inactivity cleanup run aborted",
			"trigger", trigger,
			"warned", summary.Warned,
			"deleted", summary.Deleted,
			"checked", summary.Checked,
			"error", err,
		)
		return summary, err
	}

	e.logger.InfoContext(ctx, "inactivity cleanup run complete",
		"trigger", trigger,
		"warned", summary.Warned,
		"deleted", summary.Deleted,
		"checked", summary.Checked,
		"deferred_by_cap", deferred,
		"deletion_withheld", retained,
		"duration_ms", duration.Milliseconds(),
	)
	return summary, nil
}

// warn notifies the account and persists the warned/scheduled pair. It
// reports whether the account ended up warned by this call.
//
// The notification goes out before the write. When the write then fails,
// the account keeps no lifecycle state and the next run warns it again, so
// the user can receive a duplicate warning.
func (e *Engine) warn(ctx context.Context, c classifiedAccount, now time.Time) bool {
	acct := c.Account

	// WarnWindow implies neither lifecycle field is set. A row violating that
	// is left alone rather than having its schedule overwritten.
	if acct.InactivityWarnedAt != nil || acct.ScheduledDeletionAt != nil {
		e.logger.ErrorContext(ctx, "warn-window account already carries lifecycle state, skipping",
			"account_id", acct.ID,
			"inactivity_warned_at", acct.InactivityWarnedAt,
			"scheduled_deletion_at", acct.ScheduledDeletionAt,
		)
		return false
	}
	if acct.Email == "" {
		e.logger.WarnContext(ctx, "account has no email address, cannot warn",
			"account_id", acct.ID,
		)
		return false
	}

	warning := types.InactivityWarning{
		AccountID:    acct.ID,
		To:           acct.Email,
		Name:         acct.Name,
		DeletionDate: c.DeleteAt,
		ResourceLink: e.resourceLink(acct),
	}
	if err := e.notifier.SendInactivityWarning(ctx, warning); err != nil {
		e.logger.ErrorContext(ctx, "failed to send inactivity warning",
			"account_id", acct.ID,
			"error", err,
		)
		return false
	}

	applied, err := e.accounts.WriteWarnAndSchedule(ctx, acct.ID, now, c.DeleteAt)
	if err != nil {
		e.logger.ErrorContext(ctx, "warning sent but lifecycle write failed, account stays eligible",
			"account_id", acct.ID,
			"error", err,
		)
		return false
	}
	if !applied {
		e.logger.WarnContext(ctx, "account already warned by a concurrent writer",
			"account_id", acct.ID,
		)
		return false
	}

	e.logger.InfoContext(ctx, "inactivity warning issued",
		"account_id", acct.ID,
		"role", string(acct.Role),
		"last_activity_at", c.LastActivity,
		"scheduled_deletion_at", c.DeleteAt,
		"overdue", c.Overdue,
	)
	return true
}

// delete removes one account and reports whether a row was removed.
func (e *Engine) delete(ctx context.Context, accountID string) bool {
	deleted, err := e.accounts.DeleteAccount(ctx, accountID)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to delete account",
			"account_id", accountID,
			"error", err,
		)
		return false
	}
	if !deleted {
		e.logger.DebugContext(ctx, "account already gone",
			"account_id", accountID,
		)
		return false
	}

	e.logger.InfoContext(ctx, "inactive account deleted",
		"account_id", accountID,
	)
	return true
}

func (e *Engine) resourceLink(acct types.Account) string {
	if e.links == nil {
		return ""
	}
	return e.links.ResourceLink(acct)
}

func (e *Engine) referenceTime(override time.Time) time.Time {
	if !override.IsZero() {
		return override.UTC()
	}
	return e.now()
}
