package permits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Create inserts a pending permit.
func (r *Repository) Create(ctx context.Context, p Permit) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO permits
		(id, employee_id, department_id, date, exit_time, return_time, reason, destination, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.EmployeeID, p.DepartmentID, p.Date, p.ExitTime, p.ReturnTime, p.Reason, p.Destination, string(p.Status), p.CreatedAt)
	return err
}

const permitSelect = `SELECT p.id, p.employee_id, p.department_id, p.date, p.exit_time, p.return_time,
	p.reason, p.destination, p.status, COALESCE(p.rejection_reason, ''), p.created_at,
	e.name, e.code, e.grade, d.name
	FROM permits p
	JOIN employees e ON e.id = p.employee_id
	JOIN departments d ON d.id = p.department_id`

func scanPermit(row pgx.Row) (Permit, error) {
	var p Permit
	var status, grade string
	if err := row.Scan(&p.ID, &p.EmployeeID, &p.DepartmentID, &p.Date, &p.ExitTime, &p.ReturnTime,
		&p.Reason, &p.Destination, &status, &p.RejectionReason, &p.CreatedAt,
		&p.EmployeeName, &p.EmployeeCode, &grade, &p.DepartmentName); err != nil {
		return Permit{}, err
	}
	p.Status = Status(status)
	p.EmployeeGrade = org.Grade(grade)
	return p, nil
}

// Get fetches one permit with its decision history.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Permit, error) {
	row := r.pool.QueryRow(ctx, permitSelect+` WHERE p.id = $1`, id)
	p, err := scanPermit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permit{}, ErrNotFound
		}
		return Permit{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT a.id, a.permit_id, a.approver_id, a.outcome, COALESCE(a.notes, ''), a.decided_at, e.name
		FROM permit_decisions a
		JOIN employees e ON e.id = a.approver_id
		WHERE a.permit_id = $1
		ORDER BY a.decided_at`, id)
	if err != nil {
		return Permit{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d Decision
		var outcome string
		if err := rows.Scan(&d.ID, &d.PermitID, &d.ApproverID, &outcome, &d.Notes, &d.DecidedAt, &d.ApproverName); err != nil {
			return Permit{}, err
		}
		d.Outcome = Outcome(outcome)
		p.Decisions = append(p.Decisions, d)
	}
	return p, rows.Err()
}

// List returns permits matching the viewer scope and filters, newest
// first, with the unpaginated total.
func (r *Repository) List(ctx context.Context, scope Scope, filters ListFilters, limit, offset int) ([]Permit, int, error) {
	where, args := buildListClause(scope, filters)
	if where == "" {
		// A scope with an empty grade set can never match anything.
		return nil, 0, nil
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM permits p JOIN employees e ON e.id = p.employee_id JOIN departments d ON d.id = p.department_id WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`, permitSelect, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func buildListClause(scope Scope, filters ListFilters) (string, []any) {
	if scope.Grades.Empty() {
		return "", nil
	}

	where := []string{"1=1"}
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if scope.RequesterID > 0 {
		where = append(where, "p.employee_id = "+next(scope.RequesterID))
	}
	if scope.PendingOnly {
		where = append(where, "p.status = "+next(string(StatusPending)))
	}
	if !scope.Grades.All() {
		placeholders := make([]string, 0, len(scope.Grades.Grades()))
		for _, g := range scope.Grades.Grades() {
			placeholders = append(placeholders, next(string(g)))
		}
		where = append(where, "e.grade IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filters.Status != "" {
		where = append(where, "p.status = "+next(string(filters.Status)))
	}
	if filters.DepartmentID > 0 {
		where = append(where, "p.department_id = "+next(filters.DepartmentID))
	}
	if filters.Grade != "" {
		where = append(where, "e.grade = "+next(string(filters.Grade)))
	}
	if !filters.DateFrom.IsZero() {
		where = append(where, "p.date >= "+next(filters.DateFrom))
	}
	if !filters.DateTo.IsZero() {
		where = append(where, "p.date <= "+next(filters.DateTo))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		ph := next("%" + s + "%")
		where = append(where, "(e.name ILIKE "+ph+" OR e.code ILIKE "+ph+")")
	}

	return strings.Join(where, " AND "), args
}

// DecisionsByApprover returns an approver's decision history, newest
// first.
func (r *Repository) DecisionsByApprover(ctx context.Context, approverID int64, limit, offset int) ([]Decision, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permit_decisions WHERE approver_id = $1`, approverID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT a.id, a.permit_id, a.approver_id, a.outcome, COALESCE(a.notes, ''), a.decided_at, e.name
		FROM permit_decisions a
		JOIN employees e ON e.id = a.approver_id
		WHERE a.approver_id = $1
		ORDER BY a.decided_at DESC
		LIMIT $2 OFFSET $3`, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var outcome string
		if err := rows.Scan(&d.ID, &d.PermitID, &d.ApproverID, &outcome, &d.Notes, &d.DecidedAt, &d.ApproverName); err != nil {
			return nil, 0, err
		}
		d.Outcome = Outcome(outcome)
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// CountByStatus counts permits per status within a scope.
func (r *Repository) CountByStatus(ctx context.Context, scope Scope) (map[Status]int, error) {
	counts := map[Status]int{}
	where, args := buildListClause(scope, ListFilters{})
	if where == "" {
		return counts, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT p.status, COUNT(*) FROM permits p JOIN employees e ON e.id = p.employee_id JOIN departments d ON d.id = p.department_id WHERE `+where+` GROUP BY p.status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// CountDecisionsByApprover counts an approver's decisions per outcome.
func (r *Repository) CountDecisionsByApprover(ctx context.Context, approverID int64) (map[Outcome]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT outcome, COUNT(*) FROM permit_decisions WHERE approver_id = $1 GROUP BY outcome`, approverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[Outcome]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// GetForUpdate locks the permit row for the duration of the transaction.
func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Permit, error) {
	row := t.tx.QueryRow(ctx, permitSelect+` WHERE p.id = $1 FOR UPDATE OF p`, id)
	p, err := scanPermit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permit{}, ErrNotFound
		}
		return Permit{}, err
	}
	return p, nil
}

// HasDecision reports whether the approver already decided on the
// permit.
func (t *txRepo) HasDecision(ctx context.Context, permitID uuid.UUID, approverID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permit_decisions WHERE permit_id = $1 AND approver_id = $2)`, permitID, approverID).Scan(&exists)
	return exists, err
}

// InsertDecision appends to the permit's decision history. The unique
// (permit_id, approver_id) index closes the race between the existence
// pre-check and this write.
func (t *txRepo) InsertDecision(ctx context.Context, d Decision) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO permit_decisions (id, permit_id, approver_id, outcome, notes, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.PermitID, d.ApproverID, string(d.Outcome), d.Notes, d.DecidedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateDecision
		}
		return err
	}
	return nil
}

// SetStatus transitions the permit to its terminal state.
func (t *txRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status, rejectionReason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE permits SET status = $2, rejection_reason = NULLIF($3, '') WHERE id = $1`,
		id, string(status), rejectionReason)
	return err
}
