package models

import "time"

// Role is the staff role supplied by the identity collaborator
type Role string

const (
	RoleEmployee     Role = "employee"
	RoleManager      Role = "manager"
	RoleOwnerManager Role = "owner_manager"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleOwnerManager:
		return true
	}
	return false
}

// Employee is a directory record. The ledger only ever writes Balance and BalanceUpdatedAt.
type Employee struct {
	ID               string     `json:"id" db:"id"`
	FullName         string     `json:"full_name" db:"full_name"`
	Role             Role       `json:"role" db:"role"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	Balance          int64      `json:"balance" db:"balance"`
	BalanceUpdatedAt *time.Time `json:"balance_updated_at,omitempty" db:"balance_updated_at"`
}

// Actor is the authenticated user invoking an operation
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
