package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mcloones/rewards/internal/models"
	"github.com/mcloones/rewards/internal/store"
)

// QueryService serves the read paths. It never sums the transaction log; balances come
// from the aggregate.
type QueryService struct {
	ledger store.Ledger
}

func NewQueryService(ledger store.Ledger) *QueryService {
	return &QueryService{ledger: ledger}
}

func (s *QueryService) GetBalance(ctx context.Context, employeeID string) (int64, error) {
	balance, err := s.ledger.Balance(ctx, employeeID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrEmployeeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetHistory lists one employee's transactions, newest first
func (s *QueryService) GetHistory(ctx context.Context, employeeID string, page store.Page) (store.TransactionPage, error) {
	if _, err := s.ledger.Employee(ctx, employeeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.TransactionPage{}, ErrEmployeeNotFound
		}
		return store.TransactionPage{}, fmt.Errorf("get history: %w", err)
	}

	result, err := s.ledger.ListByEmployee(ctx, employeeID, page)
	if err != nil {
		return store.TransactionPage{}, fmt.Errorf("get history: %w", err)
	}
	return result, nil
}

// GetGlobalFeed lists transactions across all employees, newest first
func (s *QueryService) GetGlobalFeed(ctx context.Context, page store.Page) (store.TransactionPage, error) {
	result, err := s.ledger.ListRecent(ctx, page)
	if err != nil {
		return store.TransactionPage{}, fmt.Errorf("get global feed: %w", err)
	}
	return result, nil
}

// GetLeaderboard ranks active employees with a positive balance. Equal balances are
// ordered by full name, then id. Recomputed on every call.
func (s *QueryService) GetLeaderboard(ctx context.Context, n int) ([]models.Standing, error) {
	if n <= 0 {
		return []models.Standing{}, nil
	}

	employees, err := s.ledger.Employees(ctx)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	ranked := make([]models.Employee, 0, len(employees))
	for _, emp := range employees {
		if emp.IsActive && emp.Balance > 0 {
			ranked = append(ranked, emp)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Balance != b.Balance {
			return a.Balance > b.Balance
		}
		if a.FullName != b.FullName {
			return a.FullName < b.FullName
		}
		return a.ID < b.ID
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}

	standings := make([]models.Standing, len(ranked))
	for i, emp := range ranked {
		standings[i] = models.Standing{Rank: i + 1, Employee: emp, Balance: emp.Balance}
	}
	return standings, nil
}
