package permits

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, p Permit) error
	Get(ctx context.Context, id uuid.UUID) (Permit, error)
	List(ctx context.Context, scope Scope, filters ListFilters, limit, offset int) ([]Permit, int, error)
	DecisionsByApprover(ctx context.Context, approverID int64, limit, offset int) ([]Decision, int, error)
	CountByStatus(ctx context.Context, scope Scope) (map[Status]int, error)
	CountDecisionsByApprover(ctx context.Context, approverID int64) (map[Outcome]int, error)
}

// TxRepository exposes the operations performed inside the resolve
// transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Permit, error)
	HasDecision(ctx context.Context, permitID uuid.UUID, approverID int64) (bool, error)
	InsertDecision(ctx context.Context, d Decision) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status, rejectionReason string) error
}

// OrgPort exposes required org lookups.
type OrgPort interface {
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	CountActiveEmployees(ctx context.Context) (int, error)
	CountDepartments(ctx context.Context) (int, error)
}

// Notifier receives permit events. Dispatch is best effort; failures are
// logged by the implementation and never fail the triggering operation.
type Notifier interface {
	PermitSubmitted(ctx context.Context, p Permit, requester org.Employee)
	PermitResolved(ctx context.Context, p Permit, d Decision)
}

// Service orchestrates the permit lifecycle.
type Service struct {
	repo     RepositoryPort
	orgs     OrgPort
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a permit service.
func NewService(repo RepositoryPort, orgs OrgPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orgs: orgs, notifier: notifier, logger: logger, now: time.Now}
}

// Submit validates the input and creates a pending permit for the
// requester. Every violated field is reported, not just the first.
func (s *Service) Submit(ctx context.Context, requester org.Employee, input SubmitInput) (Permit, error) {
	fields := make(map[string]string)

	if input.DepartmentID <= 0 {
		fields["department_id"] = "department is required"
	} else if s.orgs != nil {
		exists, err := s.orgs.DepartmentExists(ctx, input.DepartmentID)
		if err != nil {
			return Permit{}, fmt.Errorf("permits: check department: %w", err)
		}
		if !exists {
			fields["department_id"] = "selected department is invalid"
		}
	}

	if input.Date.IsZero() {
		fields["date"] = "date is required"
	} else if dateOnly(input.Date).Before(dateOnly(s.now())) {
		fields["date"] = "date cannot be in the past"
	}

	exitAt, exitErr := time.Parse(timeOfDayLayout, input.ExitTime)
	if exitErr != nil {
		fields["exit_time"] = "exit time must be in HH:MM format"
	}
	returnAt, returnErr := time.Parse(timeOfDayLayout, input.ReturnTime)
	if returnErr != nil {
		fields["return_time"] = "return time must be in HH:MM format"
	} else if exitErr == nil && !returnAt.After(exitAt) {
		fields["return_time"] = "return time must be after exit time"
	}

	switch reason := strings.TrimSpace(input.Reason); {
	case reason == "":
		fields["reason"] = "reason is required"
	case len(reason) > MaxReasonLen:
		fields["reason"] = fmt.Sprintf("reason cannot exceed %d characters", MaxReasonLen)
	}

	switch dest := strings.TrimSpace(input.Destination); {
	case dest == "":
		fields["destination"] = "destination is required"
	case len(dest) > MaxDestinationLen:
		fields["destination"] = fmt.Sprintf("destination cannot exceed %d characters", MaxDestinationLen)
	}

	if len(fields) > 0 {
		return Permit{}, &ValidationError{Fields: fields}
	}

	permit := Permit{
		ID:            uuid.New(),
		EmployeeID:    requester.ID,
		DepartmentID:  input.DepartmentID,
		Date:          dateOnly(input.Date),
		ExitTime:      input.ExitTime,
		ReturnTime:    input.ReturnTime,
		Reason:        strings.TrimSpace(input.Reason),
		Destination:   strings.TrimSpace(input.Destination),
		Status:        StatusPending,
		CreatedAt:     s.now().UTC(),
		EmployeeName:  requester.Name,
		EmployeeCode:  requester.Code,
		EmployeeGrade: requester.Grade,
	}
	if err := s.repo.Create(ctx, permit); err != nil {
		return Permit{}, fmt.Errorf("permits: create: %w", err)
	}

	if s.notifier != nil {
		s.notifier.PermitSubmitted(ctx, permit, requester)
	}
	return permit, nil
}

// Decide records one approver's verdict and resolves the permit. The
// whole operation runs in a single transaction: status and duplicate
// checks are re-evaluated against the locked row so concurrent deciders
// cannot both commit. Preconditions fail in a fixed order: pending,
// authority, duplicate.
func (s *Service) Decide(ctx context.Context, permitID uuid.UUID, approver org.Employee, outcome Outcome, notes string) (Permit, error) {
	if outcome != OutcomeApproved && outcome != OutcomeRejected {
		return Permit{}, &ValidationError{Fields: map[string]string{"outcome": "outcome must be either approved or rejected"}}
	}
	if len(notes) > MaxNotesLen {
		return Permit{}, &ValidationError{Fields: map[string]string{"notes": fmt.Sprintf("notes cannot exceed %d characters", MaxNotesLen)}}
	}

	var resolved Permit
	var decision Decision
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, permitID)
		if err != nil {
			return err
		}
		if p.Status != StatusPending {
			return ErrAlreadyProcessed
		}
		if !CanApprove(approver.Role, approver.Grade, p.EmployeeGrade) {
			return ErrUnauthorizedApprover
		}
		exists, err := tx.HasDecision(ctx, permitID, approver.ID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateDecision
		}

		decision = Decision{
			ID:           uuid.New(),
			PermitID:     permitID,
			ApproverID:   approver.ID,
			Outcome:      outcome,
			Notes:        notes,
			DecidedAt:    s.now().UTC(),
			ApproverName: approver.Name,
		}
		// The unique (permit_id, approver_id) constraint backs this
		// insert; the pre-check alone cannot close the race window.
		if err := tx.InsertDecision(ctx, decision); err != nil {
			return err
		}

		rejection := ""
		if outcome == OutcomeRejected {
			rejection = notes
		}
		if err := tx.SetStatus(ctx, permitID, outcome.Status(), rejection); err != nil {
			return err
		}

		p.Status = outcome.Status()
		p.RejectionReason = rejection
		p.Decisions = append(p.Decisions, decision)
		resolved = p
		return nil
	})
	if err != nil {
		return Permit{}, err
	}

	if s.notifier != nil {
		s.notifier.PermitResolved(ctx, resolved, decision)
	}
	return resolved, nil
}

// Get fetches one permit with its decision history. Regular employees
// may only fetch their own.
func (s *Service) Get(ctx context.Context, viewer org.Employee, id uuid.UUID) (Permit, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Permit{}, err
	}
	if viewer.Role == org.RoleEmployee && p.EmployeeID != viewer.ID {
		return Permit{}, ErrForbidden
	}
	return p, nil
}

// ListVisible returns the permits the viewer is entitled to see, newest
// first. The visibility scope is applied identically regardless of the
// filters supplied, so filters only ever narrow the result.
func (s *Service) ListVisible(ctx context.Context, viewer org.Employee, filters ListFilters, page, perPage int) ([]Permit, shared.Pagination, error) {
	scope := ScopeFor(viewer)
	pg := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.List(ctx, scope, filters, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(pg.Page, pg.PerPage, total), nil
}

// DecisionHistory returns the viewer's own past decisions, newest
// first. Only approver roles have a decision history.
func (s *Service) DecisionHistory(ctx context.Context, viewer org.Employee, page, perPage int) ([]Decision, shared.Pagination, error) {
	switch viewer.Role {
	case org.RoleSupervisor, org.RoleManager, org.RoleHR:
	default:
		return nil, shared.Pagination{}, ErrForbidden
	}
	pg := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.DecisionsByApprover(ctx, viewer.ID, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(pg.Page, pg.PerPage, total), nil
}

// StatsFor computes the dashboard statistics block for a viewer's role.
func (s *Service) StatsFor(ctx context.Context, viewer org.Employee) (map[string]int, error) {
	stats := make(map[string]int)

	switch viewer.Role {
	case org.RoleEmployee:
		counts, err := s.repo.CountByStatus(ctx, Scope{RequesterID: viewer.ID, Grades: AllGrades()})
		if err != nil {
			return nil, err
		}
		stats["total_requests"] = counts[StatusPending] + counts[StatusApproved] + counts[StatusRejected]
		stats["pending_requests"] = counts[StatusPending]
		stats["approved_requests"] = counts[StatusApproved]
		stats["rejected_requests"] = counts[StatusRejected]

	case org.RoleSupervisor, org.RoleManager, org.RoleHR:
		counts, err := s.repo.CountByStatus(ctx, Scope{PendingOnly: true, Grades: VisibleGrades(viewer.Role, viewer.Grade)})
		if err != nil {
			return nil, err
		}
		stats["pending_approvals"] = counts[StatusPending]
		decided, err := s.repo.CountDecisionsByApprover(ctx, viewer.ID)
		if err != nil {
			return nil, err
		}
		stats["total_approved"] = decided[OutcomeApproved]
		stats["total_rejected"] = decided[OutcomeRejected]

	case org.RoleAdmin:
		counts, err := s.repo.CountByStatus(ctx, Scope{Grades: AllGrades()})
		if err != nil {
			return nil, err
		}
		stats["total_requests"] = counts[StatusPending] + counts[StatusApproved] + counts[StatusRejected]
		stats["pending_requests"] = counts[StatusPending]
		stats["approved_requests"] = counts[StatusApproved]
		stats["rejected_requests"] = counts[StatusRejected]
		if s.orgs != nil {
			employees, err := s.orgs.CountActiveEmployees(ctx)
			if err != nil {
				return nil, err
			}
			departments, err := s.orgs.CountDepartments(ctx)
			if err != nil {
				return nil, err
			}
			stats["total_employees"] = employees
			stats["total_departments"] = departments
		}
	}

	return stats, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
