package access

import (
	"time"

	"github.com/casbin/casbin/v2"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"go.uber.org/zap"
)

const (
	ReasonPlatformAdmin    = "platform_admin"
	ReasonPlatformOnly     = "platform_admin_only"
	ReasonNoCompany        = "no_company"
	ReasonRole             = "role"
	ReasonPackage          = "package"
	ReasonDemoExpired      = "demo_expired"
	ReasonSimulatedRole    = "simulated_role"
	ReasonSimulatedPackage = "simulated_package"
	ReasonUnknownSurface   = "unknown_surface"
	ReasonGranted          = "granted"
)

// Decision is the outcome of a surface check. Reason names the rule that
// decided it.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Filter evaluates role rules from casbin and package rules from the
// licensing policy. It only reads State and never writes tenant data.
type Filter struct {
	log       *zap.Logger
	enforcer  *casbin.SyncedEnforcer
	licensing *config.LicensingConfigHolder
}

func NewFilter(log *zap.Logger, enforcer *casbin.SyncedEnforcer, licensing *config.LicensingConfigHolder) *Filter {
	return &Filter{
		log:       log.Named("access.filter"),
		enforcer:  enforcer,
		licensing: licensing,
	}
}

func (f *Filter) Allow(state State, surface Surface, now time.Time) Decision {
	if !surface.Valid() {
		return deny(ReasonUnknownSurface)
	}

	// The platform console follows the real platform role so a simulating
	// admin can always leave the simulation.
	if surface == SurfacePlatform {
		if state.IsPlatformAdmin() {
			return allow(ReasonPlatformAdmin)
		}
		return deny(ReasonPlatformOnly)
	}

	if state.IsPlatformAdmin() {
		return f.allowPlatformAdmin(state, surface)
	}

	if state.CompanyID == nil {
		return deny(ReasonNoCompany)
	}
	if !f.roleAllows(state.Role, surface) {
		return deny(ReasonRole)
	}
	if state.PackageType == companydomain.PackageDemo && demoExpired(state.DemoExpiresAt, now) {
		if contains(f.licensing.Get().DemoExpiredSurfaces, surface) {
			return allow(ReasonGranted)
		}
		return deny(ReasonDemoExpired)
	}
	if !f.packageAllows(state.PackageType, surface) {
		return deny(ReasonPackage)
	}
	return allow(ReasonGranted)
}

func (f *Filter) allowPlatformAdmin(state State, surface Surface) Decision {
	switch {
	case state.SimulatedPackage != nil:
		// A package preview always runs as admin.
		if !f.packageAllows(*state.SimulatedPackage, surface) || !f.roleAllows(membershipdomain.RoleAdmin, surface) {
			return deny(ReasonSimulatedPackage)
		}
		return allow(ReasonSimulatedPackage)
	case state.SimulatedRole != nil:
		if !f.roleAllows(*state.SimulatedRole, surface) {
			return deny(ReasonSimulatedRole)
		}
		return allow(ReasonSimulatedRole)
	default:
		return allow(ReasonPlatformAdmin)
	}
}

// Allowed lists the surfaces the state can reach at now.
func (f *Filter) Allowed(state State, now time.Time) []Surface {
	out := make([]Surface, 0, len(Surfaces))
	for _, surface := range Surfaces {
		if f.Allow(state, surface, now).Allowed {
			out = append(out, surface)
		}
	}
	return out
}

func (f *Filter) roleAllows(role membershipdomain.Role, surface Surface) bool {
	if !role.Valid() {
		return false
	}
	ok, err := f.enforcer.Enforce(roleSubject(role), string(surface), actionAccess)
	if err != nil {
		f.log.Error("role policy evaluation failed",
			zap.String("role", string(role)),
			zap.String("surface", string(surface)),
			zap.Error(err),
		)
		return false
	}
	return ok
}

func (f *Filter) packageAllows(pkg companydomain.PackageType, surface Surface) bool {
	return contains(f.licensing.Get().Packages[string(pkg)], surface)
}

func demoExpired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}

func contains(list []string, surface Surface) bool {
	for _, item := range list {
		if item == string(surface) {
			return true
		}
	}
	return false
}
