package services

import (
	"context"

	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
	"github.com/mcloones/rewards/internal/store/memory"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAward(ctx context.Context, tx models.Transaction, balance int64) error {
	args := m.Called(ctx, tx, balance)
	return args.Error(0)
}

// faultyLedger wraps the memory store and fails inside the unit of work
type faultyLedger struct {
	*memory.Store
	appendErr error
	applyErr  error
}

func (f *faultyLedger) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.Store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, ledger: f})
	})
}

type faultyTx struct {
	store.Tx
	ledger *faultyLedger
}

func (t *faultyTx) Append(ctx context.Context, draft models.TransactionDraft) (models.Transaction, error) {
	if t.ledger.appendErr != nil {
		return models.Transaction{}, t.ledger.appendErr
	}
	return t.Tx.Append(ctx, draft)
}

func (t *faultyTx) ApplyDelta(ctx context.Context, employeeID string, delta int64) (int64, error) {
	if t.ledger.applyErr != nil {
		return 0, t.ledger.applyErr
	}
	return t.Tx.ApplyDelta(ctx, employeeID, delta)
}

var (
	maggie = models.Actor{ID: "m1", Name: "Maggie", Role: models.RoleManager}
	moe    = models.Actor{ID: "m2", Name: "Moe", Role: models.RoleOwnerManager}
	bart   = models.Actor{ID: "e1", Name: "Bart", Role: models.RoleEmployee}
)

// newStaff seeds the directory used across the service tests
func newStaff() *memory.Store {
	s := memory.New()
	s.PutEmployee(models.Employee{ID: "e1", FullName: "Bart", Role: models.RoleEmployee, IsActive: true})
	s.PutEmployee(models.Employee{ID: "e2", FullName: "Lisa", Role: models.RoleEmployee, IsActive: true})
	s.PutEmployee(models.Employee{ID: "e3", FullName: "Otto", Role: models.RoleEmployee, IsActive: false})
	s.PutEmployee(models.Employee{ID: "m1", FullName: "Maggie", Role: models.RoleManager, IsActive: true})
	s.PutEmployee(models.Employee{ID: "m2", FullName: "Moe", Role: models.RoleOwnerManager, IsActive: true})
	return s
}
