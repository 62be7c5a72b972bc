package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidTransition matches every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("invalid order input")
	// ErrNotFound is returned by repositories when no order has the given identity.
	ErrNotFound = errors.New("order not found")
	// ErrConcurrentUpdate is returned by storage when the order changed since
	// it was loaded.
	ErrConcurrentUpdate = errors.New("order modified concurrently")
)

// InvalidTransitionError is returned when an operation is not allowed from the
// order's current status.
type InvalidTransitionError struct {
	OrderID    string
	Current    Status
	Transition Transition
	Allowed    []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("order %s: cannot %s from %s (allowed from: %s)",
		e.OrderID, e.Transition, e.Current, strings.Join(allowed, ", "))
}

// Is reports whether target is ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError is returned when operation input is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
