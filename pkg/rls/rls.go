package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithCompany scopes the current postgres transaction to a tenant so row level
// security policies on company owned tables can filter by it. Other dialects
// have no session variables and are left untouched.
func WithCompany(tx *gorm.DB, companyID int64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('app.current_company_id', ?, true)",
		fmt.Sprintf("%d", companyID),
	).Error
}
