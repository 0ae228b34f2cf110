package permits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass-hq/gatepass/internal/org"
)

func TestVisibleGradesRuleTable(t *testing.T) {
	tests := []struct {
		name  string
		role  org.Role
		grade org.Grade
		want  []org.Grade
		all   bool
	}{
		{name: "hr sees every grade", role: org.RoleHR, grade: org.GradeG9, all: true},
		{name: "hr grade is irrelevant", role: org.RoleHR, grade: org.GradeG13, all: true},
		{name: "manager sees G10 and G9", role: org.RoleManager, grade: org.GradeG8, want: []org.Grade{org.GradeG9, org.GradeG10}},
		{name: "manager grade is irrelevant", role: org.RoleManager, grade: org.GradeG12, want: []org.Grade{org.GradeG9, org.GradeG10}},
		{name: "supervisor G10 sees junior band", role: org.RoleSupervisor, grade: org.GradeG10, want: []org.Grade{org.GradeG11, org.GradeG12, org.GradeG13}},
		{name: "supervisor G8 sees G9", role: org.RoleSupervisor, grade: org.GradeG8, want: []org.Grade{org.GradeG9}},
		{name: "supervisor at other grade sees nothing", role: org.RoleSupervisor, grade: org.GradeG9},
		{name: "supervisor G11 sees nothing", role: org.RoleSupervisor, grade: org.GradeG11},
		{name: "employee sees nothing", role: org.RoleEmployee, grade: org.GradeG8},
		{name: "admin has no approval authority", role: org.RoleAdmin, grade: org.GradeG8},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			set := VisibleGrades(tc.role, tc.grade)
			if tc.all {
				assert.True(t, set.All())
				return
			}
			assert.False(t, set.All())
			assert.Equal(t, tc.want, set.Grades())
			assert.Equal(t, len(tc.want) == 0, set.Empty())
		})
	}
}

// CanApprove must agree with VisibleGrades for every role/grade/requester
// combination, including roles with no authority at all.
func TestCanApproveMatchesVisibility(t *testing.T) {
	roles := []org.Role{org.RoleEmployee, org.RoleSupervisor, org.RoleManager, org.RoleHR, org.RoleAdmin}

	for _, role := range roles {
		for _, approverGrade := range org.Grades() {
			set := VisibleGrades(role, approverGrade)
			for _, requesterGrade := range org.Grades() {
				got := CanApprove(role, approverGrade, requesterGrade)
				assert.Equal(t, set.Contains(requesterGrade), got,
					"role=%s approver=%s requester=%s", role, approverGrade, requesterGrade)
			}
		}
	}
}

func TestCanApproveNeverCrossesUpward(t *testing.T) {
	// A supervisor can never decide on a grade senior to or equal to
	// their own band.
	assert.False(t, CanApprove(org.RoleSupervisor, org.GradeG10, org.GradeG10))
	assert.False(t, CanApprove(org.RoleSupervisor, org.GradeG10, org.GradeG9))
	assert.False(t, CanApprove(org.RoleSupervisor, org.GradeG10, org.GradeG8))
	assert.False(t, CanApprove(org.RoleSupervisor, org.GradeG8, org.GradeG8))

	// Managers cover the G10/G9 band only.
	assert.True(t, CanApprove(org.RoleManager, org.GradeG8, org.GradeG10))
	assert.False(t, CanApprove(org.RoleManager, org.GradeG8, org.GradeG11))
	assert.False(t, CanApprove(org.RoleManager, org.GradeG8, org.GradeG8))
}

func TestGradeSetMembership(t *testing.T) {
	set := NewGradeSet(org.GradeG11, org.GradeG13)
	require.False(t, set.All())
	assert.True(t, set.Contains(org.GradeG11))
	assert.True(t, set.Contains(org.GradeG13))
	assert.False(t, set.Contains(org.GradeG12))

	all := AllGrades()
	assert.True(t, all.All())
	assert.Nil(t, all.Grades())
	for _, g := range org.Grades() {
		assert.True(t, all.Contains(g))
	}

	var zero GradeSet
	assert.True(t, zero.Empty())
	assert.False(t, zero.Contains(org.GradeG9))
}

func TestScopeFor(t *testing.T) {
	employee := org.Employee{ID: 4, Role: org.RoleEmployee, Grade: org.GradeG12}
	scope := ScopeFor(employee)
	assert.Equal(t, int64(4), scope.RequesterID)
	assert.False(t, scope.PendingOnly)
	assert.True(t, scope.Grades.All())

	hr := org.Employee{ID: 9, Role: org.RoleHR, Grade: org.GradeG9}
	scope = ScopeFor(hr)
	assert.Zero(t, scope.RequesterID)
	assert.False(t, scope.PendingOnly)
	assert.True(t, scope.Grades.All())

	spv := org.Employee{ID: 2, Role: org.RoleSupervisor, Grade: org.GradeG10}
	scope = ScopeFor(spv)
	assert.Zero(t, scope.RequesterID)
	assert.True(t, scope.PendingOnly)
	assert.Equal(t, []org.Grade{org.GradeG11, org.GradeG12, org.GradeG13}, scope.Grades.Grades())
}
