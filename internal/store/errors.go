package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a unique constraint or a
// compare-and-swap update lost its race.
var ErrConflict = errors.New("conflict")

const uniqueViolation = "23505"

// ConflictError carries the name of the violated unique constraint.
type ConflictError struct {
	Constraint string
	Err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return "conflict"
	}
	return "conflict on " + e.Constraint
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// translateError maps driver errors onto the store error set.
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &ConflictError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// ConstraintOf returns the violated constraint name of a conflict error, or "".
func ConstraintOf(err error) string {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict.Constraint
	}
	return ""
}
