package story

import "errors"

var (
	// ErrGuardViolation is returned when a prerequisite is missing; no network call is made.
	ErrGuardViolation = errors.New("guard violation")
	// ErrTransportFailure covers network, status and decode failures.
	ErrTransportFailure = errors.New("transport failure")
	// ErrCapabilityUnavailable is returned when spoken playback is unsupported.
	ErrCapabilityUnavailable = errors.New("spoken playback is not available")
)

// ServiceError is an explicit error reported by the backend in its response body.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}
