package access

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newTestFilter(t *testing.T) *Filter {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewFilter(zap.NewNop(), enforcer, config.NewStaticLicensingConfigHolder(config.DefaultLicensingConfig()))
}

func customer(role membershipdomain.Role, pkg companydomain.PackageType) State {
	companyID := snowflake.ID(7)
	return State{
		SessionID:    1,
		UserID:       2,
		CompanyID:    &companyID,
		Role:         role,
		PlatformRole: membershipdomain.CustomerUser,
		PackageType:  pkg,
	}
}

func platformAdmin() State {
	return State{SessionID: 10, UserID: 11, PlatformRole: membershipdomain.PlatformAdmin}
}

func ptr[T any](v T) *T { return &v }

func TestRoleRules(t *testing.T) {
	f := newTestFilter(t)

	tech := customer(membershipdomain.RoleTech, companydomain.PackageFullAccess)
	assert.True(t, f.Allow(tech, SurfaceWorkOrders, now).Allowed)
	assert.False(t, f.Allow(tech, SurfaceRCA, now).Allowed)
	assert.Equal(t, ReasonRole, f.Allow(tech, SurfaceBilling, now).Reason)

	manager := customer(membershipdomain.RoleManager, companydomain.PackageFullAccess)
	assert.True(t, f.Allow(manager, SurfaceRCA, now).Allowed)
	assert.True(t, f.Allow(manager, SurfaceUsers, now).Allowed)
	assert.False(t, f.Allow(manager, SurfaceSettings, now).Allowed)

	admin := customer(membershipdomain.RoleAdmin, companydomain.PackageFullAccess)
	for _, surface := range Surfaces {
		want := surface != SurfacePlatform
		assert.Equal(t, want, f.Allow(admin, surface, now).Allowed, surface)
	}
}

func TestPackageRules(t *testing.T) {
	f := newTestFilter(t)

	admin := customer(membershipdomain.RoleAdmin, companydomain.PackageTroubleshooting)
	assert.Equal(t, []Surface{SurfaceTroubleshooting}, f.Allowed(admin, now))

	ops := customer(membershipdomain.RoleAdmin, companydomain.PackageOperations)
	d := f.Allow(ops, SurfaceTroubleshooting, now)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonPackage, d.Reason)
}

func TestExpiredDemoOnlyExposesBillingAndSettings(t *testing.T) {
	f := newTestFilter(t)

	admin := customer(membershipdomain.RoleAdmin, companydomain.PackageDemo)
	admin.DemoExpiresAt = ptr(now.Add(time.Hour))
	assert.True(t, f.Allow(admin, SurfaceWorkOrders, now).Allowed)

	admin.DemoExpiresAt = ptr(now)
	assert.Equal(t, []Surface{SurfaceBilling, SurfaceSettings}, f.Allowed(admin, now))
	assert.Equal(t, ReasonDemoExpired, f.Allow(admin, SurfaceDashboard, now).Reason)

	tech := customer(membershipdomain.RoleTech, companydomain.PackageDemo)
	tech.DemoExpiresAt = ptr(now.Add(-time.Hour))
	assert.Empty(t, f.Allowed(tech, now))
}

func TestPlatformAdminWithoutSimulationHasFullAccess(t *testing.T) {
	f := newTestFilter(t)
	assert.Equal(t, Surfaces, f.Allowed(platformAdmin(), now))
}

func TestPlatformAdminSimulatedPackage(t *testing.T) {
	f := newTestFilter(t)

	state := platformAdmin()
	state.SimulatedPackage = ptr(companydomain.PackageTroubleshooting)
	assert.Equal(t, []Surface{SurfaceTroubleshooting, SurfacePlatform}, f.Allowed(state, now))
	assert.Equal(t, ReasonSimulatedPackage, f.Allow(state, SurfaceBilling, now).Reason)

	state.SimulatedPackage = ptr(companydomain.PackageOperations)
	assert.True(t, f.Allow(state, SurfaceBilling, now).Allowed, "role is treated as admin")

	state.SimulatedRole = ptr(membershipdomain.RoleTech)
	assert.True(t, f.Allow(state, SurfaceBilling, now).Allowed, "stale role is ignored under a package preview")
}

func TestPlatformAdminSimulatedRoleOnly(t *testing.T) {
	f := newTestFilter(t)

	state := platformAdmin()
	state.SimulatedRole = ptr(membershipdomain.RoleTech)
	assert.True(t, f.Allow(state, SurfaceTroubleshooting, now).Allowed)
	assert.False(t, f.Allow(state, SurfaceUsers, now).Allowed)
	assert.True(t, f.Allow(state, SurfacePlatform, now).Allowed)
}

func TestSimulationIsolatedBetweenStates(t *testing.T) {
	f := newTestFilter(t)

	a := platformAdmin()
	a.SimulatedPackage = ptr(companydomain.PackageTroubleshooting)
	b := platformAdmin()
	b.SessionID = 20

	assert.False(t, f.Allow(a, SurfaceWorkOrders, now).Allowed)
	assert.True(t, f.Allow(b, SurfaceWorkOrders, now).Allowed)
}

func TestCustomerSimulationFieldsIgnored(t *testing.T) {
	f := newTestFilter(t)

	tech := customer(membershipdomain.RoleTech, companydomain.PackageFullAccess)
	tech.SimulatedRole = ptr(membershipdomain.RoleAdmin)
	assert.False(t, f.Allow(tech, SurfaceBilling, now).Allowed)
	assert.False(t, f.Allow(tech, SurfacePlatform, now).Allowed)

	unbound := customer(membershipdomain.RoleAdmin, companydomain.PackageFullAccess)
	unbound.CompanyID = nil
	assert.Equal(t, ReasonNoCompany, f.Allow(unbound, SurfaceDashboard, now).Reason)
	assert.Equal(t, ReasonUnknownSurface, f.Allow(unbound, Surface("reports"), now).Reason)
}
