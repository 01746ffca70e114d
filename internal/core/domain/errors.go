package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrConflict             = errors.New("concurrent modification conflict")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrCompensationFailed   = errors.New("compensation failed, reconciliation required")
	ErrMalformedFact        = errors.New("malformed fact")
	ErrTransientDependency  = errors.New("dependency unavailable")
	ErrInvalidRequest       = errors.New("invalid request")
)

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}

// IsRejection reports whether err is a client-facing rejection rather than
// an internal failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidRequest)
}
