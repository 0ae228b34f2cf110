// Package org models the organisation: departments, employees, and the
// grade/role attributes approval authority is derived from.
package org

import (
	"fmt"
	"time"
)

// Grade is an ordinal seniority band. Lower numbers are more senior in
// this scheme: a G8 sits above a G13.
type Grade string

const (
	GradeG8  Grade = "G8"
	GradeG9  Grade = "G9"
	GradeG10 Grade = "G10"
	GradeG11 Grade = "G11"
	GradeG12 Grade = "G12"
	GradeG13 Grade = "G13"
)

// Grades lists every band in seniority order.
func Grades() []Grade {
	return []Grade{GradeG8, GradeG9, GradeG10, GradeG11, GradeG12, GradeG13}
}

// ParseGrade validates a grade label.
func ParseGrade(raw string) (Grade, error) {
	g := Grade(raw)
	for _, known := range Grades() {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("org: unknown grade %q", raw)
}

// Role is the closed set of functional categories an employee can hold.
// Authority over exit permits is derived from role and grade together,
// never from role alone.
type Role string

const (
	// RoleEmployee submits permits and sees only their own.
	RoleEmployee Role = "employee"
	// RoleSupervisor approves for the bands directly below their own
	// grade (front line approval).
	RoleSupervisor Role = "supervisor"
	// RoleManager approves the middle bands G10 and G9.
	RoleManager Role = "manager"
	// RoleHR approves every band and sees everything.
	RoleHR Role = "hr"
	// RoleAdmin administers the system but never approves.
	RoleAdmin Role = "admin"
)

// Roles lists every role.
func Roles() []Role {
	return []Role{RoleEmployee, RoleSupervisor, RoleManager, RoleHR, RoleAdmin}
}

// ParseRole validates a role label.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	for _, known := range Roles() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("org: unknown role %q", raw)
}

// Department groups employees. It carries no behaviour beyond
// filtering.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Employee is an org member tied to a login user.
type Employee struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	UserID       int64     `json:"user_id"`
	DepartmentID int64     `json:"department_id"`
	Name         string    `json:"name"`
	Grade        Grade     `json:"grade"`
	Role         Role      `json:"role"`
	Position     string    `json:"position,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// DirectoryFilters narrows employee directory listings.
type DirectoryFilters struct {
	DepartmentID int64
	Grade        Grade
	Role         Role
	Search       string
}
