// Package scheduler runs the inactivity lifecycle jobs under a distributed
// lock and records each run in job_history.
//
// The MaintenancePayload is the JSON structure sent by the EventBridge rule to
// the lifecycle worker. The same payload is accepted by the job runner CLI.
package scheduler

import (
	"time"

	"eduplatform/internal/lifecycle"
)

// TaskType identifies a lifecycle job. It is also the job_type written to
// job_history.
type TaskType string

const (
	// TaskInactivityCleanup is the automatic warn-and-delete pass.
	TaskInactivityCleanup TaskType = "inactivity_cleanup"
	// TaskInactivityManualWarn is an operator-triggered warning batch.
	TaskInactivityManualWarn TaskType = "inactivity_manual_warn"
)

// InactivityLockID is the job_locks row shared by every job that mutates
// the lifecycle columns. Manual warnings race the automatic run, so both
// take it.
const InactivityLockID = "inactivity_cleanup"

// DefaultLockTTL bounds how long a crashed holder can block other runs.
const DefaultLockTTL = 30 * time.Minute

// MaintenancePayload is the JSON payload of a scheduled invocation.
//
//	{
//	  "task": "inactivity_cleanup",
//	  "reference_time": "2026-02-06T03:00:00Z",  // optional
//	  "retention_days": 120                       // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime allows manual invocation to specify a different "now"
	// for deterministic execution and backfilling. If nil, the engine clock
	// is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`

	RetentionDays     *int `json:"retention_days,omitempty"`
	WarnLeadDays      *int `json:"warn_lead_days,omitempty"`
	MaxWarningsPerRun *int `json:"max_warnings_per_run,omitempty"`
}

// RunParams merges the payload overrides onto defaults. An empty Task is
// treated as TaskInactivityCleanup.
func (p MaintenancePayload) RunParams(defaults lifecycle.RunParams) lifecycle.RunParams {
	params := defaults
	if p.ReferenceTime != nil {
		params.Now = p.ReferenceTime.UTC()
	}
	if p.RetentionDays != nil {
		params.RetentionDays = *p.RetentionDays
	}
	if p.WarnLeadDays != nil {
		params.WarnLeadDays = *p.WarnLeadDays
	}
	if p.MaxWarningsPerRun != nil {
		params.MaxWarningsPerRun = *p.MaxWarningsPerRun
	}
	return params
}
