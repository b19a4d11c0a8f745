package tier

import (
	"errors"
	"fmt"

	"github.com/sells-group/tier-cli/internal/resilience"
	"github.com/sells-group/tier-cli/internal/upstream"
)

// ErrorKind classifies a failed recalculation.
type ErrorKind string

const (
	KindUpstreamNotFound  ErrorKind = "UPSTREAM_NOT_FOUND"
	KindUpstreamTransient ErrorKind = "UPSTREAM_TRANSIENT"
	KindUnexpected        ErrorKind = "UNEXPECTED"
)

// RecalculationError is returned when a recalculation could not complete.
type RecalculationError struct {
	Kind   ErrorKind
	CRN    string
	Reason string
	Err    error
}

func (e *RecalculationError) Error() string {
	return fmt.Sprintf("tier: recalculate %s (%s): %s: %v", e.CRN, e.Reason, e.Kind, e.Err)
}

func (e *RecalculationError) Unwrap() error { return e.Err }

// KindOf returns the kind of a RecalculationError in err's chain, or
// KindUnexpected.
func KindOf(err error) ErrorKind {
	var re *RecalculationError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnexpected
}

// IsTerminal reports whether redelivering the same trigger cannot help.
func IsTerminal(err error) bool {
	var re *RecalculationError
	if errors.As(err, &re) {
		return re.Kind == KindUpstreamNotFound
	}
	return upstream.IsNotFound(err) || upstream.IsBadRequest(err)
}

func classify(err error) ErrorKind {
	switch {
	case upstream.IsNotFound(err):
		return KindUpstreamNotFound
	case resilience.IsTransient(err):
		return KindUpstreamTransient
	default:
		return KindUnexpected
	}
}
