package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist. Ownership
// violations wrap it as well so callers cannot probe for existence.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input rejected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Ineligibility reasons.
const (
	ReasonNotPending    = "not_pending"
	ReasonExpired       = "report_expired"
	ReasonTooFar        = "too_far"
	ReasonDuplicate     = "duplicate"
	ReasonNotResolvable = "not_resolvable"
	ReasonLowTrust      = "low_trust_score"
	ReasonNotDemo       = "not_demo"
)

// IneligibleError rejects a well-formed request that the current state does
// not allow. Reason is a stable machine-readable code.
type IneligibleError struct {
	Reason  string
	Message string
}

func (e *IneligibleError) Error() string {
	return e.Message
}

// Ineligible builds an IneligibleError.
func Ineligible(reason, message string) error {
	return &IneligibleError{Reason: reason, Message: message}
}

// NotFound wraps ErrNotFound with the entity kind.
func NotFound(kind string) error {
	return fmt.Errorf("%s %w", kind, ErrNotFound)
}

// NotOwned reports an ownership violation indistinguishably from a missing entity.
func NotOwned(kind string) error {
	return fmt.Errorf("%s %w or not owned", kind, ErrNotFound)
}
