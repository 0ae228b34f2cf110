package permits

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the permit does not exist.
	ErrNotFound = errors.New("permits: not found")
	// ErrAlreadyProcessed indicates a decision arrived after the permit
	// reached a terminal state.
	ErrAlreadyProcessed = errors.New("permits: already processed")
	// ErrUnauthorizedApprover indicates the approver's role/grade carries
	// no authority over the requester's grade.
	ErrUnauthorizedApprover = errors.New("permits: approver not authorized")
	// ErrDuplicateDecision indicates the approver already recorded a
	// decision for this permit.
	ErrDuplicateDecision = errors.New("permits: duplicate decision")
	// ErrForbidden indicates the viewer may not access the permit.
	ErrForbidden = errors.New("permits: forbidden")
)

// ValidationError reports every violated field of a submission, not just
// the first.
type ValidationError struct {
	Fields map[string]string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "permits: validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("permits: validation failed: %s", strings.Join(names, ", "))
}

// AsValidationError unwraps err into a ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
