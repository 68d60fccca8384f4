package lifecycle

import (
	"context"
	"time"

	"eduplatform/internal/types"
)

// WarnCandidate is an account the next run would warn.
type WarnCandidate struct {
	AccountID      string     `json:"account_id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Role           types.Role `json:"role"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	DeleteAt       time.Time  `json:"delete_at"`
	Overdue        bool       `json:"overdue"`
}

// DeleteCandidate is an account whose scheduled deletion is due.
type DeleteCandidate struct {
	AccountID           string     `json:"account_id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	Role                types.Role `json:"role"`
	ScheduledDeletionAt time.Time  `json:"scheduled_deletion_at"`
}

// PreviewResult lists what a run with the same thresholds would act on.
type PreviewResult struct {
	RetentionDays    int               `json:"retention_days"`
	WarnLeadDays     int               `json:"warn_lead_days"`
	DeletionEnabled  bool              `json:"deletion_enabled"`
	GeneratedAt      time.Time         `json:"generated_at"`
	Checked          int               `json:"checked"`
	WarnCandidates   []WarnCandidate   `json:"warn_candidates"`
	DeleteCandidates []DeleteCandidate `json:"delete_candidates"`
}

// Preview runs the cleanup classification without notifying or mutating
// anything. Delete candidates are listed even in warn-only mode;
// DeletionEnabled tells the caller whether a run would act on them.
func (e *Engine) Preview(ctx context.Context, params PreviewParams) (PreviewResult, error) {
	th := params.thresholds()
	now := e.referenceTime(params.Now)

	result := PreviewResult{
		RetentionDays:    th.RetentionDays,
		WarnLeadDays:     th.WarnLeadDays,
		DeletionEnabled:  e.features.DeletionEnabled,
		GeneratedAt:      now,
		WarnCandidates:   []WarnCandidate{},
		DeleteCandidates: []DeleteCandidate{},
	}

	checked, err := e.scan(ctx, th, now, func(c classifiedAccount) {
		switch c.Bucket {
		case BucketWarnWindow:
			result.WarnCandidates = append(result.WarnCandidates, WarnCandidate{
				AccountID:      c.Account.ID,
				Email:          c.Account.Email,
				Name:           c.Account.Name,
				Role:           c.Account.Role,
				LastActivityAt: c.LastActivity,
				DeleteAt:       c.DeleteAt,
				Overdue:        c.Overdue,
			})
		case BucketDeletionDue:
			result.DeleteCandidates = append(result.DeleteCandidates, DeleteCandidate{
				AccountID:           c.Account.ID,
				Email:               c.Account.Email,
				Name:                c.Account.Name,
				Role:                c.Account.Role,
				ScheduledDeletionAt: c.DeleteAt,
			})
		}
	})
	result.Checked = checked
	if err != nil {
		return result, err
	}

	e.logger.InfoContext(ctx, "inactivity preview generated",
		"retention_days", th.RetentionDays,
		"warn_lead_days", th.WarnLeadDays,
		"checked", checked,
		"warn_candidates", len(result.WarnCandidates),
		"delete_candidates", len(result.DeleteCandidates),
	)
	return result, nil
}
