package access

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
)

// State is the per-request view of who is calling and what they are
// simulating. It is rebuilt from the session row on every request.
type State struct {
	SessionID        snowflake.ID                  `json:"session_id"`
	UserID           snowflake.ID                  `json:"user_id"`
	CompanyID        *snowflake.ID                 `json:"company_id,omitempty"`
	Role             membershipdomain.Role         `json:"role"`
	PlatformRole     membershipdomain.PlatformRole `json:"platform_role"`
	PackageType      companydomain.PackageType     `json:"package_type,omitempty"`
	DemoExpiresAt    *time.Time                    `json:"demo_expires_at,omitempty"`
	SimulatedRole    *membershipdomain.Role        `json:"simulated_role,omitempty"`
	SimulatedPackage *companydomain.PackageType    `json:"simulated_package,omitempty"`
}

func (s State) IsPlatformAdmin() bool {
	return s.PlatformRole == membershipdomain.PlatformAdmin
}

// Simulating reports whether a platform admin has any simulation active.
func (s State) Simulating() bool {
	return s.IsPlatformAdmin() && (s.SimulatedRole != nil || s.SimulatedPackage != nil)
}

type stateKey struct{}

func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, stateKey{}, state)
}

func StateFromContext(ctx context.Context) (*State, bool) {
	state, ok := ctx.Value(stateKey{}).(*State)
	return state, ok && state != nil
}
