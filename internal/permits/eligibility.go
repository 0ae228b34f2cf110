package permits

import "github.com/gatepass-hq/gatepass/internal/org"

// GradeSet is the set of requester grades an approver may see and act
// on. The zero value is the empty set.
type GradeSet struct {
	all    bool
	grades map[org.Grade]struct{}
}

// AllGrades returns the unrestricted set.
func AllGrades() GradeSet {
	return GradeSet{all: true}
}

// NewGradeSet builds an explicit set.
func NewGradeSet(grades ...org.Grade) GradeSet {
	s := GradeSet{grades: make(map[org.Grade]struct{}, len(grades))}
	for _, g := range grades {
		s.grades[g] = struct{}{}
	}
	return s
}

// All reports whether the set is unrestricted.
func (s GradeSet) All() bool { return s.all }

// Empty reports whether the set contains no grades.
func (s GradeSet) Empty() bool { return !s.all && len(s.grades) == 0 }

// Contains reports membership.
func (s GradeSet) Contains(g org.Grade) bool {
	if s.all {
		return true
	}
	_, ok := s.grades[g]
	return ok
}

// Grades returns the explicit members in seniority order. Callers must
// check All first; an unrestricted set returns nil.
func (s GradeSet) Grades() []org.Grade {
	if s.all {
		return nil
	}
	out := make([]org.Grade, 0, len(s.grades))
	for _, g := range org.Grades() {
		if _, ok := s.grades[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// VisibleGrades returns the requester grades a role/grade combination is
// allowed to see in pending queues. The rule table is fixed:
//
//	hr             any grade  -> every grade
//	manager        any grade  -> G10, G9
//	supervisor     G10        -> G11, G12, G13
//	supervisor     G8         -> G9
//	anything else             -> none
//
// Authority is a band comparison, not a reporting line, which keeps the
// check O(1) and side-effect free.
func VisibleGrades(role org.Role, grade org.Grade) GradeSet {
	switch role {
	case org.RoleHR:
		return AllGrades()
	case org.RoleManager:
		return NewGradeSet(org.GradeG10, org.GradeG9)
	case org.RoleSupervisor:
		switch grade {
		case org.GradeG10:
			return NewGradeSet(org.GradeG11, org.GradeG12, org.GradeG13)
		case org.GradeG8:
			return NewGradeSet(org.GradeG9)
		}
	}
	return GradeSet{}
}

// CanApprove reports whether an approver with the given role and grade
// may decide on a request from requesterGrade. Defined in terms of
// VisibleGrades so the two can never disagree: a grade is approvable
// exactly when it is visible.
func CanApprove(role org.Role, approverGrade, requesterGrade org.Grade) bool {
	return VisibleGrades(role, approverGrade).Contains(requesterGrade)
}
