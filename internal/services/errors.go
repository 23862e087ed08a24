package services

import (
	"errors"
	"fmt"

	"github.com/mcloones/rewards/internal/store"
)

// Ledger error kinds. Validation and authorization kinds are always returned before
// anything is written.
var (
	ErrInvalidAmount    = errors.New("amount must be non-zero")
	ErrInvalidReason    = errors.New("reason is required")
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrEmployeeInactive = errors.New("employee is not active")
	ErrUnauthorized     = errors.New("actor is not allowed to award points")
	ErrStorage          = errors.New("ledger storage failure")
)

// StorageError wraps a persistence failure during the award unit of work.
// Nothing was committed when it is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match any StorageError
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ErrorKind names the error for clients and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidReason):
		return "invalid_reason"
	case errors.Is(err, ErrEmployeeNotFound):
		return "employee_not_found"
	case errors.Is(err, ErrEmployeeInactive):
		return "employee_inactive"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, store.ErrInvalidCursor):
		return "invalid_cursor"
	default:
		return "internal_error"
	}
}
