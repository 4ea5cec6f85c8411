package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrAuthentication means the caller is anonymous or its credential was rejected.
	ErrAuthentication = errors.New("authentication credentials were not provided or are invalid")

	// ErrForbidden means the caller is known but not allowed to perform the operation.
	ErrForbidden = errors.New("you do not have permission to perform this action")

	// ErrMailDelivery wraps failures of the confirmation mail sender.
	ErrMailDelivery = errors.New("confirmation mail could not be delivered")
)

// ValidationError collects user-facing input problems. Fields maps a request
// field to its messages; Message carries a problem not tied to one field.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "validation failed: " + strings.Join(names, ", ")
}

// Add records msg against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return e.Message == "" && len(e.Fields) == 0
}

// orNil lets callers accumulate into a ValidationError and return it only
// when something was added.
func (e *ValidationError) orNil() error {
	if e == nil || e.empty() {
		return nil
	}
	return e
}

func fieldError(field, msg string) *ValidationError {
	verr := &ValidationError{}
	verr.Add(field, msg)
	return verr
}

func nonFieldError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

// mergeValidation folds b into a. Either may be nil.
func mergeValidation(a error, b *ValidationError) error {
	if b == nil || b.empty() {
		return a
	}
	if a == nil {
		return b
	}
	var verr *ValidationError
	if !errors.As(a, &verr) {
		return a
	}
	for field, msgs := range b.Fields {
		for _, msg := range msgs {
			verr.Add(field, msg)
		}
	}
	if verr.Message == "" {
		verr.Message = b.Message
	}
	return verr
}
