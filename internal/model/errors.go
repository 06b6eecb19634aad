package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrForbidden is returned when an override or admin action is not authorized.
var ErrForbidden = errors.New("forbidden")

// ConflictError means the requested range overlaps an existing commitment.
type ConflictError struct {
	Conflicts ConflictSet
}

func (e *ConflictError) Error() string {
	parts := make([]string, 0, 3)
	if n := len(e.Conflicts.Reservations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d reservation(s)", n))
	}
	if n := len(e.Conflicts.EventBlocks); n > 0 {
		parts = append(parts, fmt.Sprintf("%d event block(s)", n))
	}
	if n := len(e.Conflicts.Closures); n > 0 {
		parts = append(parts, fmt.Sprintf("%d closure(s)", n))
	}
	return "conflicts with " + strings.Join(parts, ", ")
}

// ValidationError means the request itself is malformed or out of bounds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError means the referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// StateError means the action is not allowed from the current state.
type StateError struct {
	ID     int64
	State  string
	Action string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s reservation %d in state %s", e.Action, e.ID, e.State)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err carries a ConflictError and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}
