package types

import (
	"errors"
	"fmt"
)

// Kind classifies a failed backend round trip.
type Kind string

const (
	// KindRateLimited means the backend signaled overload or quota exhaustion.
	KindRateLimited Kind = "rate_limited"
	// KindBackendError is any other non-2xx backend status.
	KindBackendError Kind = "backend_error"
	// KindTimeout means the round trip exceeded its bound.
	KindTimeout Kind = "timeout"
	// KindTransportFailure is a connection-level failure.
	KindTransportFailure Kind = "transport_failure"
)

// Error is the tagged failure a completion backend reports instead of a
// result. HTTPStatus and Body are populated for KindBackendError so the
// raw diagnostics can be surfaced verbatim.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Body       string
	Message    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackendError:
		return fmt.Sprintf("backend error: HTTP %d: %s", e.HTTPStatus, e.Body)
	case KindRateLimited:
		return fmt.Sprintf("rate limited: HTTP %d", e.HTTPStatus)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Classify extracts the backend classification from err, defaulting to
// KindTransportFailure for errors that carry no *Error.
func Classify(err error) *Error {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr
	}

	return &Error{Kind: KindTransportFailure, Message: err.Error()}
}
