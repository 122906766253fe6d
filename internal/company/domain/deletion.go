package domain

// DeletionStep removes the rows of one table owned by a company. Where is a
// predicate whose every bind parameter is the company id. A step with Set
// updates the matching rows instead of deleting them.
type DeletionStep struct {
	Table string
	Where string
	Set   string
}

// Releases reports whether the step detaches rows rather than deleting them.
func (s DeletionStep) Releases() bool { return s.Set != "" }

// DeletionPlan is executed in order inside a single transaction. Children
// come before the rows they reference.
type DeletionPlan struct {
	Steps []DeletionStep
}

// OwnedTables lists the operational tables scoped by company_id, children
// first.
var OwnedTables = []string{
	"training_progress",
	"rca_reports",
	"work_order_parts",
	"work_orders",
	"pm_schedules",
	"parts",
	"equipment",
}

const companyUsers = "(SELECT id FROM users WHERE company_id = ?)"

func DefaultDeletionPlan() DeletionPlan {
	steps := []DeletionStep{
		{Table: "sessions", Where: "user_id IN " + companyUsers},
		{Table: "invitations", Where: "company_id = ?"},
	}
	for _, table := range OwnedTables {
		where := "company_id = ?"
		if table == "training_progress" {
			where += " OR user_id IN " + companyUsers
		}
		steps = append(steps, DeletionStep{Table: table, Where: where})
	}
	// Users may have moved here from another tenant that still points at them.
	steps = append(steps,
		DeletionStep{Table: "work_orders", Set: "assigned_to = NULL", Where: "assigned_to IN " + companyUsers},
		DeletionStep{Table: "rca_reports", Set: "created_by = NULL", Where: "created_by IN " + companyUsers},
		DeletionStep{Table: "users", Where: "company_id = ?"},
		DeletionStep{Table: "audit_logs", Where: "company_id = ?"},
		DeletionStep{Table: "companies", Where: "id = ?"},
	)
	return DeletionPlan{Steps: steps}
}

// DeletionReport counts removed rows per table, and the rows of other
// tenants whose references to this company's users were cleared.
type DeletionReport struct {
	CompanyID string           `json:"company_id"`
	Deleted   map[string]int64 `json:"deleted"`
	Released  map[string]int64 `json:"released,omitempty"`
}
