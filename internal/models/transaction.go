package models

import (
	"time"
)

// TransactionDraft is what the award service hands to the transaction store
type TransactionDraft struct {
	EmployeeID    string
	Amount        int64
	Reason        string
	AwardedByID   string
	AwardedByName string
}

// Transaction is an immutable ledger entry. Positive amounts are awards, negative are deductions.
type Transaction struct {
	ID            string    `json:"id" db:"id"`
	EmployeeID    string    `json:"employee_id" db:"employee_id"`
	Amount        int64     `json:"amount" db:"amount"`
	Reason        string    `json:"reason" db:"reason"`
	AwardedByID   string    `json:"awarded_by_id" db:"awarded_by_id"`
	AwardedByName string    `json:"awarded_by_name" db:"awarded_by_name"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Standing is one leaderboard row
type Standing struct {
	Rank     int      `json:"rank"`
	Employee Employee `json:"employee"`
	Balance  int64    `json:"balance"`
}
