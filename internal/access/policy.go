package access

import (
	_ "embed"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const actionAccess = "access"

func roleSubject(role membershipdomain.Role) string {
	return "role:" + string(role)
}

// NewEnforcer loads role policies from the casbin_rule table and seeds the
// defaults. Operators can add rows to grant extra surfaces per role.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer with the default policies and no
// storage.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	tech := roleSubject(membershipdomain.RoleTech)
	manager := roleSubject(membershipdomain.RoleManager)
	admin := roleSubject(membershipdomain.RoleAdmin)

	policies := [][]string{
		// Technicians work the floor.
		{tech, string(SurfaceDashboard), actionAccess},
		{tech, string(SurfaceWorkOrders), actionAccess},
		{tech, string(SurfaceEquipment), actionAccess},
		{tech, string(SurfacePreventiveMaintenance), actionAccess},
		{tech, string(SurfaceParts), actionAccess},
		{tech, string(SurfaceTroubleshooting), actionAccess},
		{tech, string(SurfaceTraining), actionAccess},

		{manager, string(SurfaceRCA), actionAccess},
		{manager, string(SurfaceUsers), actionAccess},

		{admin, string(SurfaceBilling), actionAccess},
		{admin, string(SurfaceSettings), actionAccess},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	grouping := [][]string{
		{manager, tech},
		{admin, manager},
	}
	for _, rule := range grouping {
		if _, err := enforcer.AddGroupingPolicy(rule); err != nil {
			return err
		}
	}
	return nil
}
