package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no caller identity was supplied.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the account or transaction is missing or owned by someone else.
	ErrNotFound = errors.New("not found")

	// ErrPartialOwnershipMismatch aborts a bulk operation whose ids did not all resolve.
	ErrPartialOwnershipMismatch = errors.New("one or more transactions were not found or are not owned by the caller")

	// ErrStoreFailure means the atomic unit could not complete.
	ErrStoreFailure = errors.New("store failure")

	// ErrConflict is a store failure caused by a concurrent writer.
	ErrConflict = errors.New("concurrent update conflict")

	ErrInvalidInput = errors.New("invalid input")
)

// LedgerError is returned by every ledger operation.
// errors.Is matches both Kind and the underlying cause.
type LedgerError struct {
	Op     string
	Kind   error
	Entity string
	ID     string
	Err    error
}

func (e *LedgerError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Entity != "" {
		msg += fmt.Sprintf(" (%s %s)", e.Entity, e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LedgerError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the taxonomy kind of err, or nil when err is not a ledger error.
func KindOf(err error) error {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return nil
}
