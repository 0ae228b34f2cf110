// Package permits implements exit-permission requests: submission,
// grade-based approval routing, decision recording, and role-scoped
// visibility.
package permits

import (
	"time"

	"github.com/google/uuid"

	"github.com/gatepass-hq/gatepass/internal/org"
)

// Permit lifecycle statuses. A permit starts pending and transitions at
// most once to a terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Outcome is a single approver's verdict.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// Status returns the permit status the outcome resolves to.
func (o Outcome) Status() Status {
	if o == OutcomeRejected {
		return StatusRejected
	}
	return StatusApproved
}

// Field length bounds for submissions, matching the intake form.
const (
	MaxReasonLen      = 500
	MaxDestinationLen = 255
	MaxNotesLen       = 500
	timeOfDayLayout   = "15:04"
)

// Permit is an exit-permission request.
type Permit struct {
	ID              uuid.UUID `json:"id"`
	EmployeeID      int64     `json:"employee_id"`
	DepartmentID    int64     `json:"department_id"`
	Date            time.Time `json:"date"`
	ExitTime        string    `json:"exit_time"`
	ReturnTime      string    `json:"return_time"`
	Reason          string    `json:"reason"`
	Destination     string    `json:"destination"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`

	// Joined display fields, populated on reads.
	EmployeeName   string     `json:"employee_name,omitempty"`
	EmployeeCode   string     `json:"employee_code,omitempty"`
	EmployeeGrade  org.Grade  `json:"employee_grade,omitempty"`
	DepartmentName string     `json:"department_name,omitempty"`
	Decisions      []Decision `json:"decisions,omitempty"`
}

// Decision is one approver's recorded verdict on one permit. Rows are
// insert-only; at most one exists per (permit, approver) pair.
type Decision struct {
	ID           uuid.UUID `json:"id"`
	PermitID     uuid.UUID `json:"permit_id"`
	ApproverID   int64     `json:"approver_id"`
	Outcome      Outcome   `json:"outcome"`
	Notes        string    `json:"notes,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
	ApproverName string    `json:"approver_name,omitempty"`
}

// SubmitInput carries a new permit submission.
type SubmitInput struct {
	DepartmentID int64
	Date         time.Time
	ExitTime     string
	ReturnTime   string
	Reason       string
	Destination  string
}

// ListFilters narrows permit listings. Zero values mean "no filter".
type ListFilters struct {
	Status       Status
	DepartmentID int64
	Grade        org.Grade
	DateFrom     time.Time
	DateTo       time.Time
	Search       string
}

// Scope is the visibility predicate derived from a viewer's role and
// grade. It is combined with caller filters with AND semantics, so a
// filter can never widen what a viewer is entitled to see.
type Scope struct {
	RequesterID int64
	PendingOnly bool
	Grades      GradeSet
}

// ScopeFor computes the visibility scope for a viewer.
func ScopeFor(viewer org.Employee) Scope {
	switch viewer.Role {
	case org.RoleAdmin, org.RoleHR:
		return Scope{Grades: AllGrades()}
	case org.RoleSupervisor, org.RoleManager:
		return Scope{PendingOnly: true, Grades: VisibleGrades(viewer.Role, viewer.Grade)}
	default:
		return Scope{RequesterID: viewer.ID, Grades: AllGrades()}
	}
}
