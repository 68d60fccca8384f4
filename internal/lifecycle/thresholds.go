// Package lifecycle implements the account-inactivity lifecycle: resolving
// each account's last meaningful activity, classifying it against the
// retention thresholds, and driving warnings and deletions.
//
// Three entry points share one classification pass:
//
//	Engine.Run            scheduled/triggered cleanup (warn + delete, capped)
//	Engine.Preview        the same pass with no side effects
//	Engine.SendWarnings   operator-selected subset of the current warn window
//
// Engine.DeleteAccounts is the unguarded administrative override.
package lifecycle

import "time"

// Threshold defaults and bounds. Out-of-range inputs are clamped, never rejected.
const (
	DefaultRetentionDays     = 90
	DefaultWarnLeadDays      = 7
	DefaultMaxWarningsPerRun = 200

	MinRetentionDays = 30
	MaxRetentionDays = 3650

	MinWarningsPerRun = 1
	MaxWarningsPerRun = 5000
)

// Thresholds configures the classifier. After Clamp,
// RetentionDays > WarnLeadDays > 0 always holds.
type Thresholds struct {
	RetentionDays int `json:"retention_days"`
	WarnLeadDays  int `json:"warn_lead_days"`
}

// Clamp returns a copy with defaults applied to unset (<= 0) fields and
// every value forced into its allowed range.
func (t Thresholds) Clamp() Thresholds {
	retention := t.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	retention = clampInt(retention, MinRetentionDays, MaxRetentionDays)

	lead := t.WarnLeadDays
	if lead <= 0 {
		lead = DefaultWarnLeadDays
	}
	lead = clampInt(lead, 1, retention-1)

	return Thresholds{RetentionDays: retention, WarnLeadDays: lead}
}

// WarnThresholdDays is the number of inactive days after which a warning is due.
func (t Thresholds) WarnThresholdDays() int {
	return t.RetentionDays - t.WarnLeadDays
}

// ClampWarningCap applies the default and bounds to a per-run warning cap.
func ClampWarningCap(n int) int {
	if n <= 0 {
		n = DefaultMaxWarningsPerRun
	}
	return clampInt(n, MinWarningsPerRun, MaxWarningsPerRun)
}

// RunParams are the inputs of one cleanup run. Zero values take defaults.
type RunParams struct {
	RetentionDays     int
	WarnLeadDays      int
	MaxWarningsPerRun int

	// Now overrides the reference time (backfills, deterministic replays).
	Now time.Time
	// Trigger labels the run in logs and metrics ("schedule", "admin_api", ...).
	Trigger string
}

func (p RunParams) thresholds() Thresholds {
	return Thresholds{RetentionDays: p.RetentionDays, WarnLeadDays: p.WarnLeadDays}.Clamp()
}

// PreviewParams are the inputs of Preview and SendWarnings.
type PreviewParams struct {
	RetentionDays int
	WarnLeadDays  int
	Now           time.Time
}

func (p PreviewParams) thresholds() Thresholds {
	return Thresholds{RetentionDays: p.RetentionDays, WarnLeadDays: p.WarnLeadDays}.Clamp()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
