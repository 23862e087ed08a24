package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var employeeCols = []string{"id", "full_name", "role", "is_active", "balance", "balance_updated_at"}

func newMockStore(t *testing.T, now time.Time) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	s.now = func() time.Time { return now }
	return s, mock
}

func awardFn(employeeID string, amount int64, balance *int64) func(ctx context.Context, tx store.Tx) error {
	return func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockEmployee(ctx, employeeID); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, models.TransactionDraft{
			EmployeeID:    employeeID,
			Amount:        amount,
			Reason:        "Great review",
			AwardedByID:   "m1",
			AwardedByName: "Maggie",
		}); err != nil {
			return err
		}
		var err error
		*balance, err = tx.ApplyDelta(ctx, employeeID, amount)
		return err
	}
}

func TestAtomicAward(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	stamped := now.Truncate(time.Microsecond)

	t.Run("Success", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM employees WHERE id = \\$1 FOR UPDATE").
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(employeeCols).AddRow("e1", "Amy", "employee", true, 30, nil))
		mock.ExpectExec("INSERT INTO reward_transactions").
			WithArgs(sqlmock.AnyArg(), "e1", int64(10), "Great review", "m1", "Maggie", stamped).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE employees SET balance = balance \\+ \\$1, balance_updated_at = \\$2 WHERE id = \\$3 RETURNING balance").
			WithArgs(int64(10), stamped, "e1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40))
		mock.ExpectCommit()

		var balance int64
		err := s.Atomic(context.Background(), awardFn("e1", 10, &balance))
		require.NoError(t, err)
		assert.Equal(t, int64(40), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Clamps created_at to last balance update", func(t *testing.T) {
		s, mock := newMockStore(t, now)
		later := now.Add(time.Minute).Truncate(time.Microsecond)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM employees WHERE id = \\$1 FOR UPDATE").
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(employeeCols).AddRow("e1", "Amy", "employee", true, 30, later))
		mock.ExpectExec("INSERT INTO reward_transactions").
			WithArgs(sqlmock.AnyArg(), "e1", int64(-5), "Great review", "m1", "Maggie", later).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE employees SET balance = balance \\+ \\$1").
			WithArgs(int64(-5), later, "e1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(25))
		mock.ExpectCommit()

		var balance int64
		require.NoError(t, s.Atomic(context.Background(), awardFn("e1", -5, &balance)))
		assert.Equal(t, int64(25), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Employee not found", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM employees WHERE id = \\$1 FOR UPDATE").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(employeeCols))
		mock.ExpectRollback()

		var balance int64
		err := s.Atomic(context.Background(), awardFn("ghost", 10, &balance))
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Balance update failure rolls back the insert", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM employees WHERE id = \\$1 FOR UPDATE").
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows(employeeCols).AddRow("e1", "Amy", "employee", true, 30, nil))
		mock.ExpectExec("INSERT INTO reward_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE employees SET balance = balance \\+ \\$1").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		var balance int64
		err := s.Atomic(context.Background(), awardFn("e1", 10, &balance))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply balance delta")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Commit failure", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM employees WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(employeeCols).AddRow("e1", "Amy", "employee", true, 30, nil))
		mock.ExpectExec("INSERT INTO reward_transactions").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("UPDATE employees SET balance = balance \\+ \\$1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(40))
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		var balance int64
		err := s.Atomic(context.Background(), awardFn("e1", 10, &balance))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit ledger transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Begin failure", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := s.Atomic(context.Background(), func(context.Context, store.Tx) error {
			t.Fatal("unit of work must not run")
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin ledger transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Append without lock", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectBegin()
		mock.ExpectRollback()

		err := s.Atomic(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := tx.Append(ctx, models.TransactionDraft{EmployeeID: "e1", Amount: 1, Reason: "x"})
			return err
		})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReads(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	txCols := []string{"id", "employee_id", "amount", "reason", "awarded_by_id", "awarded_by_name", "created_at"}

	t.Run("Balance", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectQuery("SELECT balance FROM employees WHERE id = \\$1").
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7))
		mock.ExpectQuery("SELECT balance FROM employees WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))

		balance, err := s.Balance(context.Background(), "e1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), balance)

		_, err = s.Balance(context.Background(), "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Employees", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectQuery("FROM employees ORDER BY id").
			WillReturnRows(sqlmock.NewRows(employeeCols).
				AddRow("e1", "Amy", "employee", true, 30, now).
				AddRow("m1", "Maggie", "manager", false, 0, nil))

		employees, err := s.Employees(context.Background())
		require.NoError(t, err)
		require.Len(t, employees, 2)
		assert.Equal(t, models.RoleEmployee, employees[0].Role)
		require.NotNil(t, employees[0].BalanceUpdatedAt)
		assert.True(t, employees[0].BalanceUpdatedAt.Equal(now))
		assert.False(t, employees[1].IsActive)
		assert.Nil(t, employees[1].BalanceUpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListByEmployee pages newest first", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectQuery("FROM reward_transactions WHERE employee_id = \\$1 ORDER BY created_at DESC, id DESC LIMIT \\$2 OFFSET \\$3").
			WithArgs("e1", 2, 0).
			WillReturnRows(sqlmock.NewRows(txCols).
				AddRow("t2", "e1", -3, "Late", "m1", "Maggie", now.Add(time.Second)).
				AddRow("t1", "e1", 10, "Great review", "m2", "Moe", now))

		page, err := s.ListByEmployee(context.Background(), "e1", store.Page{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Transactions, 2)
		assert.Equal(t, "t2", page.Transactions[0].ID)
		assert.Equal(t, "2", page.NextCursor)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListRecent last page", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectQuery("FROM reward_transactions ORDER BY created_at DESC, id DESC LIMIT \\$1 OFFSET \\$2").
			WithArgs(store.DefaultPageLimit, 4).
			WillReturnRows(sqlmock.NewRows(txCols).
				AddRow("t1", "e1", 10, "Great review", "m2", "Moe", now))

		page, err := s.ListRecent(context.Background(), store.Page{Cursor: "4"})
		require.NoError(t, err)
		assert.Len(t, page.Transactions, 1)
		assert.Empty(t, page.NextCursor)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Invalid cursor never reaches the database", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		_, err := s.ListRecent(context.Background(), store.Page{Cursor: "-1"})
		assert.ErrorIs(t, err, store.ErrInvalidCursor)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SumByEmployee", func(t *testing.T) {
		s, mock := newMockStore(t, now)

		mock.ExpectQuery("SELECT employee_id, COALESCE\\(SUM\\(amount\\), 0\\) FROM reward_transactions GROUP BY employee_id").
			WillReturnRows(sqlmock.NewRows([]string{"employee_id", "sum"}).
				AddRow("e1", 7).
				AddRow("e2", 12))

		sums, err := s.SumByEmployee(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"e1": 7, "e2": 12}, sums)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
