package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
)

// Store implements the ledger on PostgreSQL. Awards lock the employee row with
// SELECT ... FOR UPDATE, so only awards for the same employee wait on each other.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Ledger = (*Store)(nil)

// New creates a Store using the provided database handle
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &pgTx{tx: sqlTx, now: s.now, locked: make(map[string]models.Employee)}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

const employeeColumns = `id, full_name, role, is_active, balance, balance_updated_at`

func scanEmployee(row interface{ Scan(...any) error }) (models.Employee, error) {
	var (
		emp       models.Employee
		role      string
		updatedAt sql.NullTime
	)
	if err := row.Scan(&emp.ID, &emp.FullName, &role, &emp.IsActive, &emp.Balance, &updatedAt); err != nil {
		return models.Employee{}, err
	}
	emp.Role = models.Role(role)
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		emp.BalanceUpdatedAt = &t
	}
	return emp, nil
}

func (s *Store) Employee(ctx context.Context, employeeID string) (models.Employee, error) {
	emp, err := scanEmployee(s.db.QueryRowContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = $1`, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Employee{}, store.ErrNotFound
	}
	if err != nil {
		return models.Employee{}, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

func (s *Store) Employees(ctx context.Context) ([]models.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []models.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("list employees: %w", err)
		}
		out = append(out, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

func (s *Store) Balance(ctx context.Context, employeeID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM employees WHERE id = $1`, employeeID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

const transactionColumns = `id, employee_id, amount, reason, awarded_by_id, awarded_by_name, created_at`

func (s *Store) ListByEmployee(ctx context.Context, employeeID string, page store.Page) (store.TransactionPage, error) {
	offset, limit, err := page.Window()
	if err != nil {
		return store.TransactionPage{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM reward_transactions
		WHERE employee_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, employeeID, limit, offset)
	if err != nil {
		return store.TransactionPage{}, fmt.Errorf("list employee transactions: %w", err)
	}
	return collectPage(rows, offset, limit)
}

func (s *Store) ListRecent(ctx context.Context, page store.Page) (store.TransactionPage, error) {
	offset, limit, err := page.Window()
	if err != nil {
		return store.TransactionPage{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM reward_transactions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return store.TransactionPage{}, fmt.Errorf("list recent transactions: %w", err)
	}
	return collectPage(rows, offset, limit)
}

func collectPage(rows *sql.Rows, offset, limit int) (store.TransactionPage, error) {
	defer rows.Close()

	out := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.EmployeeID, &t.Amount, &t.Reason, &t.AwardedByID, &t.AwardedByName, &t.CreatedAt); err != nil {
			return store.TransactionPage{}, fmt.Errorf("scan transaction: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return store.TransactionPage{}, fmt.Errorf("scan transaction: %w", err)
	}
	return store.TransactionPage{
		Transactions: out,
		NextCursor:   store.NextCursor(offset, limit, len(out)),
	}, nil
}

func (s *Store) SumByEmployee(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, COALESCE(SUM(amount), 0)
		FROM reward_transactions
		GROUP BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("sum transactions: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]int64)
	for rows.Next() {
		var (
			id    string
			total int64
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("sum transactions: %w", err)
		}
		sums[id] = total
	}
	return sums, rows.Err()
}

type pgTx struct {
	tx     *sql.Tx
	now    func() time.Time
	locked map[string]models.Employee
}

func (t *pgTx) LockEmployee(ctx context.Context, employeeID string) (models.Employee, error) {
	emp, err := scanEmployee(t.tx.QueryRowContext(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE id = $1
		FOR UPDATE`, employeeID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Employee{}, store.ErrNotFound
	}
	if err != nil {
		return models.Employee{}, fmt.Errorf("lock employee: %w", err)
	}
	t.locked[employeeID] = emp
	return emp, nil
}

// stamp returns a created_at that never goes backwards for the locked employee.
// Postgres keeps microseconds, so the value is truncated to compare equal after a round trip.
func (t *pgTx) stamp(employeeID string) time.Time {
	now := t.now().UTC().Truncate(time.Microsecond)
	if emp, ok := t.locked[employeeID]; ok && emp.BalanceUpdatedAt != nil && now.Before(*emp.BalanceUpdatedAt) {
		return *emp.BalanceUpdatedAt
	}
	return now
}

func (t *pgTx) Append(ctx context.Context, draft models.TransactionDraft) (models.Transaction, error) {
	emp, ok := t.locked[draft.EmployeeID]
	if !ok {
		return models.Transaction{}, fmt.Errorf("append: employee %s is not locked", draft.EmployeeID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("append: generate id: %w", err)
	}

	tx := models.Transaction{
		ID:            id.String(),
		EmployeeID:    draft.EmployeeID,
		Amount:        draft.Amount,
		Reason:        draft.Reason,
		AwardedByID:   draft.AwardedByID,
		AwardedByName: draft.AwardedByName,
		CreatedAt:     t.stamp(draft.EmployeeID),
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO reward_transactions (id, employee_id, amount, reason, awarded_by_id, awarded_by_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.EmployeeID, tx.Amount, tx.Reason, tx.AwardedByID, tx.AwardedByName, tx.CreatedAt)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	emp.BalanceUpdatedAt = &tx.CreatedAt
	t.locked[draft.EmployeeID] = emp
	return tx, nil
}

func (t *pgTx) ApplyDelta(ctx context.Context, employeeID string, delta int64) (int64, error) {
	if _, ok := t.locked[employeeID]; !ok {
		return 0, fmt.Errorf("apply delta: employee %s is not locked", employeeID)
	}

	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE employees
		SET balance = balance + $1, balance_updated_at = $2
		WHERE id = $3
		RETURNING balance`,
		delta, t.stamp(employeeID), employeeID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("apply balance delta: %w", err)
	}
	return balance, nil
}
