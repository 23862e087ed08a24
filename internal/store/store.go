// Package store defines the persistence contracts of the rewards ledger: the append-only
// transaction log and the per-employee balance aggregate that must move with it.
package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/mcloones/rewards/internal/models"
)

// ErrNotFound is returned when an employee does not exist in the directory
var ErrNotFound = errors.New("not found")

// DefaultPageLimit is used when a caller passes a non-positive limit
const DefaultPageLimit = 50

// Page selects a window of a newest-first transaction listing
type Page struct {
	Limit  int
	Cursor string
}

// TransactionPage is one window of a listing. NextCursor is empty on the last page.
type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
}

// Tx is the unit of work of a single award. Everything done through a Tx commits or
// rolls back together.
type Tx interface {
	// LockEmployee loads the employee and holds its aggregate lock until the unit ends.
	LockEmployee(ctx context.Context, employeeID string) (models.Employee, error)
	// Append inserts a new transaction with a generated id and created_at.
	Append(ctx context.Context, draft models.TransactionDraft) (models.Transaction, error)
	// ApplyDelta adds delta to the employee balance and returns the new balance.
	ApplyDelta(ctx context.Context, employeeID string, delta int64) (int64, error)
}

// Ledger is the transaction store and balance aggregate behind the award and query services.
// There is intentionally no update or delete of transactions.
type Ledger interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Employee(ctx context.Context, employeeID string) (models.Employee, error)
	Employees(ctx context.Context) ([]models.Employee, error)
	Balance(ctx context.Context, employeeID string) (int64, error)

	ListByEmployee(ctx context.Context, employeeID string, page Page) (TransactionPage, error)
	ListRecent(ctx context.Context, page Page) (TransactionPage, error)

	// SumByEmployee scans the whole log. Reconciliation only, never on a hot path.
	SumByEmployee(ctx context.Context) (map[string]int64, error)
}

// Window turns a page into an offset and limit
func (p Page) Window() (offset, limit int, err error) {
	limit = p.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if p.Cursor == "" {
		return 0, limit, nil
	}
	offset, err = strconv.Atoi(p.Cursor)
	if err != nil || offset < 0 {
		return 0, 0, ErrInvalidCursor
	}
	return offset, limit, nil
}

// NextCursor returns the cursor following a window that produced n rows
func NextCursor(offset, limit, n int) string {
	if n < limit {
		return ""
	}
	return strconv.Itoa(offset + n)
}

// ErrInvalidCursor is returned for a cursor not produced by this package
var ErrInvalidCursor = errors.New("invalid cursor")
