package lifecycle

import (
	"time"

	"eduplatform/internal/types"
)

// Bucket is the computed lifecycle state of an account at a point in time.
// It is never persisted.
type Bucket string

const (
	BucketActive            Bucket = "active"
	BucketWarnWindow        Bucket = "warn_window"
	BucketScheduledDeletion Bucket = "scheduled_deletion"
	BucketDeletionDue       Bucket = "deletion_due"
	BucketOptedOut          Bucket = "opted_out"
	BucketInert             Bucket = "inert"
)

// Classification is the result of Classify.
//
// WarnAt and DeleteAt are zero for OptedOut and Inert. WarnAt is also zero
// for ScheduledDeletion and DeletionDue, which are decided by the stored
// schedule without consulting activity. For WarnWindow,
// DeleteAt is the deletion date the account will be scheduled for; Overdue
// marks the branch where the natural deadline already passed unwarned.
type Classification struct {
	Bucket   Bucket    `json:"bucket"`
	WarnAt   time.Time `json:"warn_at,omitempty"`
	DeleteAt time.Time `json:"delete_at,omitempty"`
	Overdue  bool      `json:"overdue,omitempty"`
}

// Classify maps an account to its lifecycle bucket. It is pure: the same
// inputs always produce the same output. th must already be clamped.
//
// Decision order, first match wins:
//
//  1. opted out of email               -> OptedOut
//  2. role outside student/professor   -> Inert
//  3. deletion already scheduled       -> DeletionDue (now >= scheduled) or ScheduledDeletion
//  4. unwarned, warnAt <= now < delete -> WarnWindow, deleteAt = lastActivity + retention
//  5. unwarned, now >= delete          -> WarnWindow, deleteAt = now + lead (overdue)
//  6. otherwise                        -> Active
func Classify(acct types.Account, lastActivity, now time.Time, th Thresholds) Classification {
	if acct.EmailOptOut {
		return Classification{Bucket: BucketOptedOut}
	}
	if !acct.Role.ParticipatesInLifecycle() {
		return Classification{Bucket: BucketInert}
	}

	if acct.ScheduledDeletionAt != nil {
		scheduled := *acct.ScheduledDeletionAt
		c := Classification{Bucket: BucketScheduledDeletion, DeleteAt: scheduled}
		if !now.Before(scheduled) {
			c.Bucket = BucketDeletionDue
		}
		return c
	}

	warnAt := lastActivity.AddDate(0, 0, th.WarnThresholdDays())
	defaultDeleteAt := lastActivity.AddDate(0, 0, th.RetentionDays)

	if acct.InactivityWarnedAt == nil {
		switch {
		case !now.Before(warnAt) && now.Before(defaultDeleteAt):
			return Classification{Bucket: BucketWarnWindow, WarnAt: warnAt, DeleteAt: defaultDeleteAt}
		case !now.Before(defaultDeleteAt):
			// Every account gets a full lead window after its warning, even
			// when the job missed the natural deadline.
			return Classification{
				Bucket:   BucketWarnWindow,
				WarnAt:   warnAt,
				DeleteAt: now.AddDate(0, 0, th.WarnLeadDays),
				Overdue:  true,
			}
		}
	}

	return Classification{Bucket: BucketActive, WarnAt: warnAt, DeleteAt: defaultDeleteAt}
}
