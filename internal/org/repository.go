package org

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatepass-hq/gatepass/internal/shared"
)

// Repository provides PostgreSQL backed persistence for org data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const employeeColumns = `id, code, user_id, department_id, name, grade, role, position, phone, is_active, created_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	var grade, role string
	if err := row.Scan(&e.ID, &e.Code, &e.UserID, &e.DepartmentID, &e.Name, &grade, &role, &e.Position, &e.Phone, &e.IsActive, &e.CreatedAt); err != nil {
		return Employee{}, err
	}
	e.Grade = Grade(grade)
	e.Role = Role(role)
	return e, nil
}

// EmployeeByID fetches an employee by primary key.
func (r *Repository) EmployeeByID(ctx context.Context, id int64) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	return e, nil
}

// EmployeeByUserID fetches the employee profile attached to a login user.
func (r *Repository) EmployeeByUserID(ctx context.Context, userID int64) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE user_id = $1`, userID)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	return e, nil
}

// ListDepartments returns every department ordered by name.
func (r *Repository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, code FROM departments ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Code); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DepartmentExists reports whether a department id is known.
func (r *Repository) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// ListEmployees returns the employee directory with optional filters,
// newest hires first.
func (r *Repository) ListEmployees(ctx context.Context, filters DirectoryFilters, limit, offset int) ([]Employee, int, error) {
	where := []string{"1=1"}
	args := []any{}
	idx := 1

	if filters.DepartmentID > 0 {
		where = append(where, fmt.Sprintf("department_id = $%d", idx))
		args = append(args, filters.DepartmentID)
		idx++
	}
	if filters.Grade != "" {
		where = append(where, fmt.Sprintf("grade = $%d", idx))
		args = append(args, string(filters.Grade))
		idx++
	}
	if filters.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(filters.Role))
		idx++
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", idx, idx))
		args = append(args, "%"+s+"%")
		idx++
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM employees WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM employees WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, employeeColumns, clause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// CountActiveEmployees returns the number of active employees.
func (r *Repository) CountActiveEmployees(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM employees WHERE is_active`).Scan(&n)
	return n, err
}

// CountDepartments returns the number of departments.
func (r *Repository) CountDepartments(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM departments`).Scan(&n)
	return n, err
}
