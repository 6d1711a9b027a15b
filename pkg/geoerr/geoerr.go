// Package geoerr defines the stable error taxonomy shared by all
// registry, query and geocoding operations. Every user-visible failure
// carries a Kind that callers can branch on without parsing messages.
package geoerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the stable failure categories
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidInput marks a malformed or missing required field
	KindInvalidInput
	// KindCoordinateOutOfRange marks a latitude/longitude outside valid bounds
	KindCoordinateOutOfRange
	// KindInvalidGeometry marks a polygon ring that fails validation
	KindInvalidGeometry
	// KindNoResultsFound marks a valid request with no matching provider data
	KindNoResultsFound
	// KindNotFound marks a reference to an entity that does not exist
	KindNotFound
	// KindProviderUnavailable marks an external dependency failure, retryable
	KindProviderUnavailable
	// KindStorageFailure marks a persistence failure after successful computation
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindCoordinateOutOfRange:
		return "coordinate_out_of_range"
	case KindInvalidGeometry:
		return "invalid_geometry"
	case KindNoResultsFound:
		return "no_results_found"
	case KindNotFound:
		return "not_found"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error is a classified error with a human-readable message
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with the given message
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it reachable via Unwrap
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first classified error in err's chain,
// or KindUnknown when none is present.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains a classified error of kind k
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
