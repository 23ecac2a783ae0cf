package observer

import (
	"errors"
	"fmt"
	"strings"
)

// NeedsDataMarker starts the message of every needs-data error. Persisted and
// serialized results are recognized by it.
const NeedsDataMarker = "Adapt Observer Needs Data:"

var (
	ErrDuplicateRegistration = errors.New("observer already registered")
	ErrUnknownObserver       = errors.New("unknown observer")
	ErrMalformedObservations = errors.New("malformed observations")
	ErrUnknownPlugin         = errors.New("unknown observer plugin")
	ErrInvalidVariables      = errors.New("variables are not JSON encodable")
)

// NeedsDataError is returned by resolvers when the observed data required to
// resolve a field has not been fetched yet.
type NeedsDataError struct {
	Reason string
}

func (e *NeedsDataError) Error() string {
	if e.Reason == "" {
		return NeedsDataMarker
	}
	return NeedsDataMarker + " " + e.Reason
}

// Extensions tags the GraphQL error built from e.
func (e *NeedsDataError) Extensions() map[string]any {
	return map[string]any{"code": "NEEDS_DATA"}
}

// NeedsData builds a NeedsDataError with a formatted reason.
func NeedsData(format string, args ...any) *NeedsDataError {
	return &NeedsDataError{Reason: fmt.Sprintf(format, args...)}
}

// IsNeedsData reports whether err is, or wraps, a NeedsDataError. Errors that
// only survive as text, such as those read back from JSON, match on the
// marker.
func IsNeedsData(err error) bool {
	if err == nil {
		return false
	}
	var nd *NeedsDataError
	if errors.As(err, &nd) {
		return true
	}
	return strings.HasPrefix(err.Error(), NeedsDataMarker)
}
