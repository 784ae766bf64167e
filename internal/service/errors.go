package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateService is returned when a name is registered twice.
	ErrDuplicateService = errors.New("duplicate service name")

	// ErrUnknownService is returned for operations on unregistered names.
	ErrUnknownService = errors.New("unknown service")

	// ErrCyclicDependency is returned when a registration would make the
	// dependency graph cyclic.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrInvalidState is returned when a service is mid-transition and
	// cannot accept the requested operation.
	ErrInvalidState = errors.New("invalid state for requested operation")
)

// StartupError reports a failed startup sequence: the service that failed,
// why, and the dependents that were skipped because of it.
type StartupError struct {
	Service string
	Cause   error
	Skipped []string
}

func (e *StartupError) Error() string {
	msg := fmt.Sprintf("startup failed for %s: %v", e.Service, e.Cause)
	if len(e.Skipped) > 0 {
		msg = fmt.Sprintf("%s (skipped: %s)", msg, strings.Join(e.Skipped, ", "))
	}
	return msg
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}
