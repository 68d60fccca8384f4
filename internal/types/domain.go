package types

import "time"

// Role identifies the kind of participant an account represents.
type Role string

const (
	// RoleStudent submits essays. Activity is derived from finalized submissions.
	RoleStudent Role = "student"
	// RoleProfessor owns rooms. Activity is derived from task creation in those rooms.
	RoleProfessor Role = "professor"
	// RoleAdmin is never classified for inactivity.
	RoleAdmin Role = "admin"
)

// ParticipatesInLifecycle reports whether accounts of this role are subject
// to inactivity warnings and deletion. Any role outside the closed set is inert.
func (r Role) ParticipatesInLifecycle() bool {
	return r == RoleStudent || r == RoleProfessor
}

// SignalKind names a source of activity evidence for an account.
type SignalKind string

const (
	// SignalSubmission is the latest non-draft essay submitted by a student.
	SignalSubmission SignalKind = "submission"
	// SignalTaskCreation is the latest task created in a room owned by a professor.
	SignalTaskCreation SignalKind = "task_creation"
)

// Account is the slice of the user record the inactivity lifecycle reads
// and writes. InactivityWarnedAt and ScheduledDeletionAt are always written
// together; one is set if and only if the other is.
type Account struct {
	ID                  string     `json:"id" db:"id"`
	Role                Role       `json:"role" db:"role"`
	Email               string     `json:"email" db:"email"`
	Name                string     `json:"name" db:"name"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	EmailOptOut         bool       `json:"email_opt_out" db:"email_opt_out"`
	InactivityWarnedAt  *time.Time `json:"inactivity_warned_at,omitempty" db:"inactivity_warned_at"`
	ScheduledDeletionAt *time.Time `json:"scheduled_deletion_at,omitempty" db:"scheduled_deletion_at"`
}

// InactivityWarning is the content handed to a notifier when an account
// enters its warning window.
type InactivityWarning struct {
	AccountID    string    `json:"account_id"`
	To           string    `json:"to"`
	Name         string    `json:"name"`
	DeletionDate time.Time `json:"deletion_date"`
	ResourceLink string    `json:"resource_link"`
}

// InactivityWarningMessage is the SQS envelope used when warnings are
// delivered asynchronously by the email worker.
type InactivityWarningMessage struct {
	Warning    InactivityWarning `json:"warning"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	TraceID    string            `json:"trace_id,omitempty"`
}

// SendInput is the provider-neutral email request. SendGrid uses TemplateID
// and TemplateData; SES uses the pre-rendered Subject and bodies.
type SendInput struct {
	To           string
	From         SenderIdentity
	TemplateID   string
	TemplateData map[string]interface{}
	Subject      string
	BodyHTML     string
	BodyText     string
	ReferenceID  string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}
