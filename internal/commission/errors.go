// internal/commission/errors.go
package commission

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError reports a policy or request field that breaks an authoring
// rule. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a ValidationError for callers outside the package.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return invalid(field, format, args...)
}

// PolicyConflictError is returned when two or more policies share the top
// priority and specificity. Resolution never guesses between them.
type PolicyConflictError struct {
	PolicyIDs   []uuid.UUID
	Priority    int
	Specificity int
}

func (e *PolicyConflictError) Error() string {
	ids := make([]string, 0, len(e.PolicyIDs))
	for _, id := range e.PolicyIDs {
		ids = append(ids, id.String())
	}
	return fmt.Sprintf("policy conflict at priority %d: %s", e.Priority, strings.Join(ids, ", "))
}
