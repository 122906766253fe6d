package access

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUnauthorized = errors.New("platform_admin_required")

type SimulatorParams struct {
	fx.In

	Log      *zap.Logger
	Sessions authdomain.SessionRepository
	Audit    auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// Simulator stores the platform-admin preview state on the caller's own
// session row. It never touches users or companies.
type Simulator struct {
	log      *zap.Logger
	sessions authdomain.SessionRepository
	audit    auditdomain.Service
	metrics  *metrics.Metrics
}

func NewSimulator(p SimulatorParams) *Simulator {
	return &Simulator{
		log:      p.Log.Named("access.simulator"),
		sessions: p.Sessions,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

// SwitchRole sets the simulated role and ends any package simulation in the
// same update.
func (s *Simulator) SwitchRole(ctx context.Context, sessionID snowflake.ID, actor State, role membershipdomain.Role) (*State, error) {
	if err := authorize(sessionID, actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, membershipdomain.ErrInvalidRole
	}

	value := string(role)
	if err := s.sessions.UpdateSimulation(ctx, sessionID, &value, nil); err != nil {
		return nil, err
	}

	next := actor
	next.SimulatedRole = &role
	next.SimulatedPackage = nil
	s.record(ctx, actor, "role", map[string]any{"simulated_role": value})
	return &next, nil
}

// SwitchPackage sets the simulated package and ends any role simulation in
// the same update. A nil package ends every simulation on the session.
func (s *Simulator) SwitchPackage(ctx context.Context, sessionID snowflake.ID, actor State, pkg *companydomain.PackageType) (*State, error) {
	if err := authorize(sessionID, actor); err != nil {
		return nil, err
	}

	next := actor
	if pkg == nil {
		if err := s.sessions.UpdateSimulation(ctx, sessionID, nil, nil); err != nil {
			return nil, err
		}
		next.SimulatedRole = nil
		next.SimulatedPackage = nil
		s.record(ctx, actor, "clear", nil)
		return &next, nil
	}

	if !pkg.Valid() {
		return nil, companydomain.ErrInvalidPackageType
	}
	value := string(*pkg)
	if err := s.sessions.UpdateSimulation(ctx, sessionID, nil, &value); err != nil {
		return nil, err
	}
	selected := *pkg
	next.SimulatedRole = nil
	next.SimulatedPackage = &selected
	s.record(ctx, actor, "package", map[string]any{"simulated_package": value})
	return &next, nil
}

func authorize(sessionID snowflake.ID, actor State) error {
	if !actor.IsPlatformAdmin() || actor.SessionID != sessionID {
		return ErrUnauthorized
	}
	return nil
}

func (s *Simulator) record(ctx context.Context, actor State, kind string, metadata map[string]any) {
	s.metrics.RecordSimulationSwitch(ctx, kind)

	actorID := actor.UserID.String()
	targetID := actor.SessionID.String()
	err := s.audit.Record(ctx, auditdomain.Entry{
		ActorType:      string(auditdomain.ActorTypeUser),
		ActorID:        &actorID,
		Action:         "simulation." + kind,
		TargetType:     "session",
		TargetID:       &targetID,
		Metadata:       metadata,
		PlatformScoped: true,
	})
	if err != nil {
		s.log.Warn("simulation audit failed", zap.String("session_id", targetID), zap.Error(err))
	}
}
