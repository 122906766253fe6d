package access

import (
	"context"
	"errors"

	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"go.uber.org/zap"
)

// Resolver builds a State from an authenticated session.
type Resolver struct {
	log       *zap.Logger
	users     membershipdomain.Repository
	companies companydomain.Repository
}

func NewResolver(log *zap.Logger, users membershipdomain.Repository, companies companydomain.Repository) *Resolver {
	return &Resolver{
		log:       log.Named("access.resolver"),
		users:     users,
		companies: companies,
	}
}

func (r *Resolver) Resolve(ctx context.Context, session *authdomain.Session) (*State, error) {
	user, err := r.users.FindUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrUserNotFound) {
			return nil, authdomain.ErrInvalidSession
		}
		return nil, err
	}

	state := &State{
		SessionID:    session.ID,
		UserID:       user.ID,
		Role:         user.Role,
		PlatformRole: user.PlatformRole,
	}

	if user.CompanyID != nil {
		company, err := r.companies.FindByID(ctx, *user.CompanyID)
		switch {
		case err == nil:
			state.CompanyID = &company.ID
			state.PackageType = company.PackageType
			state.DemoExpiresAt = company.DemoExpiresAt
		case errors.Is(err, companydomain.ErrCompanyNotFound):
			r.log.Warn("user bound to missing company",
				zap.String("user_id", user.ID.String()),
				zap.String("company_id", user.CompanyID.String()),
			)
		default:
			return nil, err
		}
	}

	// Simulation columns left behind by a demoted admin are ignored.
	if !state.IsPlatformAdmin() {
		return state, nil
	}
	// Role and package previews are exclusive.
	if session.SimulatedRole != nil && session.SimulatedPackageType != nil {
		r.log.Warn("session carries both role and package simulation", zap.String("session_id", session.ID.String()))
		return nil, authdomain.ErrInvalidSession
	}
	if session.SimulatedRole != nil {
		role := membershipdomain.Role(*session.SimulatedRole)
		if role.Valid() {
			state.SimulatedRole = &role
		} else {
			r.log.Warn("ignoring invalid simulated role", zap.String("session_id", session.ID.String()))
		}
	}
	if session.SimulatedPackageType != nil {
		pkg := companydomain.PackageType(*session.SimulatedPackageType)
		if pkg.Valid() {
			state.SimulatedPackage = &pkg
		} else {
			r.log.Warn("ignoring invalid simulated package", zap.String("session_id", session.ID.String()))
		}
	}
	return state, nil
}
