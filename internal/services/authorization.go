package services

import "github.com/mcloones/rewards/internal/models"

// PermitsAward decides whether actor may create a ledger entry for employeeID.
// Only managers and owner managers may, and never on their own record.
func PermitsAward(actor models.Actor, employeeID string) bool {
	if actor.ID == "" || actor.ID == employeeID {
		return false
	}
	switch actor.Role {
	case models.RoleManager, models.RoleOwnerManager:
		return true
	default:
		return false
	}
}
