package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
)

// Store is an in-memory ledger. It is safe for concurrent use and is intended for tests
// and local development.
//
// Awards serialize on a mutex per employee. The employee data itself is guarded by mu,
// which writers only hold for the instant a finished unit of work is published, so a
// reader never sees a transaction without its balance delta or the reverse.
type Store struct {
	mu         sync.RWMutex
	employees  map[string]models.Employee
	byEmployee map[string][]models.Transaction
	log        []models.Transaction // ascending by (created_at, id)

	locksMu sync.Mutex
	locks   map[string]*employeeLock // only ids with a holder or waiter

	now func() time.Time
}

var _ store.Ledger = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now as the source of created_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithEmployees seeds the directory, e.g. from a seed file for local runs
func WithEmployees(employees ...models.Employee) Option {
	return func(s *Store) {
		for _, emp := range employees {
			s.PutEmployee(emp)
		}
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		employees:  make(map[string]models.Employee),
		byEmployee: make(map[string][]models.Transaction),
		locks:      make(map[string]*employeeLock),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutEmployee stands in for the employee directory. New employees start at a zero balance;
// for existing ones only the profile fields are replaced.
func (s *Store) PutEmployee(emp models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.employees[emp.ID]; ok {
		emp.Balance = existing.Balance
		emp.BalanceUpdatedAt = existing.BalanceUpdatedAt
	} else {
		emp.Balance = 0
		emp.BalanceUpdatedAt = nil
	}
	s.employees[emp.ID] = emp
}

// employeeLock is reference counted so entries for unknown or idle ids are dropped
// as soon as nobody holds or waits on them.
type employeeLock struct {
	mu   sync.Mutex
	refs int
}

func (s *Store) acquire(employeeID string) *employeeLock {
	s.locksMu.Lock()
	l, ok := s.locks[employeeID]
	if !ok {
		l = &employeeLock{}
		s.locks[employeeID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Store) release(employeeID string, l *employeeLock) {
	l.mu.Unlock()

	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(s.locks, employeeID)
	}
}

// Atomic runs fn as one unit of work. Nothing fn does is visible to readers until fn
// returns nil; on error everything is discarded.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:  s,
		locked: make(map[string]*lockedEmployee),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.commit(tx)
	return nil
}

func (s *Store) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, le := range tx.locked {
		emp, ok := s.employees[id]
		if !ok {
			continue
		}
		emp.Balance += le.delta
		emp.BalanceUpdatedAt = le.employee.BalanceUpdatedAt
		s.employees[id] = emp
	}

	for _, t := range tx.appended {
		s.byEmployee[t.EmployeeID] = append(s.byEmployee[t.EmployeeID], t)

		i := sort.Search(len(s.log), func(i int) bool {
			return newerThan(s.log[i], t)
		})
		s.log = append(s.log, models.Transaction{})
		copy(s.log[i+1:], s.log[i:])
		s.log[i] = t
	}
}

// Employee returns a copy of the directory record
func (s *Store) Employee(_ context.Context, employeeID string) (models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[employeeID]
	if !ok {
		return models.Employee{}, store.ErrNotFound
	}
	return emp, nil
}

// Employees returns every directory record ordered by id
func (s *Store) Employees(_ context.Context) ([]models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Balance(_ context.Context, employeeID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[employeeID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return emp.Balance, nil
}

func (s *Store) ListByEmployee(_ context.Context, employeeID string, page store.Page) (store.TransactionPage, error) {
	offset, limit, err := page.Window()
	if err != nil {
		return store.TransactionPage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.byEmployee[employeeID], offset, limit), nil
}

func (s *Store) ListRecent(_ context.Context, page store.Page) (store.TransactionPage, error) {
	offset, limit, err := page.Window()
	if err != nil {
		return store.TransactionPage{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return newestFirst(s.log, offset, limit), nil
}

func (s *Store) SumByEmployee(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]int64, len(s.byEmployee))
	for id, txs := range s.byEmployee {
		var total int64
		for _, t := range txs {
			total += t.Amount
		}
		sums[id] = total
	}
	return sums, nil
}

// newestFirst walks an ascending slice backwards. Caller holds mu.
func newestFirst(asc []models.Transaction, offset, limit int) store.TransactionPage {
	out := []models.Transaction{}
	for i := len(asc) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, asc[i])
	}
	return store.TransactionPage{
		Transactions: out,
		NextCursor:   store.NextCursor(offset, limit, len(out)),
	}
}

func newerThan(a, b models.Transaction) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

type lockedEmployee struct {
	employee models.Employee
	delta    int64
}

type heldLock struct {
	employeeID string
	lock       *employeeLock
}

type memTx struct {
	store    *Store
	held     []heldLock
	locked   map[string]*lockedEmployee
	appended []models.Transaction
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.store.release(tx.held[i].employeeID, tx.held[i].lock)
	}
	tx.held = nil
}

func (tx *memTx) holds(employeeID string) bool {
	for _, h := range tx.held {
		if h.employeeID == employeeID {
			return true
		}
	}
	return false
}

func (tx *memTx) LockEmployee(ctx context.Context, employeeID string) (models.Employee, error) {
	if le, ok := tx.locked[employeeID]; ok {
		emp := le.employee
		emp.Balance += le.delta
		return emp, nil
	}
	if err := ctx.Err(); err != nil {
		return models.Employee{}, err
	}

	if !tx.holds(employeeID) {
		l := tx.store.acquire(employeeID)
		tx.held = append(tx.held, heldLock{employeeID: employeeID, lock: l})
	}

	emp, err := tx.store.Employee(ctx, employeeID)
	if err != nil {
		return models.Employee{}, err
	}
	tx.locked[employeeID] = &lockedEmployee{employee: emp}
	return emp, nil
}

func (tx *memTx) Append(_ context.Context, draft models.TransactionDraft) (models.Transaction, error) {
	le, ok := tx.locked[draft.EmployeeID]
	if !ok {
		return models.Transaction{}, fmt.Errorf("append: employee %s is not locked", draft.EmployeeID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Transaction{}, fmt.Errorf("append: generate id: %w", err)
	}

	createdAt := tx.store.now().UTC().Truncate(time.Microsecond)
	if last := le.employee.BalanceUpdatedAt; last != nil && createdAt.Before(*last) {
		createdAt = *last
	}
	le.employee.BalanceUpdatedAt = &createdAt

	t := models.Transaction{
		ID:            id.String(),
		EmployeeID:    draft.EmployeeID,
		Amount:        draft.Amount,
		Reason:        draft.Reason,
		AwardedByID:   draft.AwardedByID,
		AwardedByName: draft.AwardedByName,
		CreatedAt:     createdAt,
	}
	tx.appended = append(tx.appended, t)
	return t, nil
}

func (tx *memTx) ApplyDelta(_ context.Context, employeeID string, delta int64) (int64, error) {
	le, ok := tx.locked[employeeID]
	if !ok {
		return 0, fmt.Errorf("apply delta: employee %s is not locked", employeeID)
	}
	le.delta += delta
	return le.employee.Balance + le.delta, nil
}
