package access

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	auditrepo "github.com/smallbiznis/plantops/internal/audit/repository"
	auditsvc "github.com/smallbiznis/plantops/internal/audit/service"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	authrepo "github.com/smallbiznis/plantops/internal/auth/repository"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	companyrepo "github.com/smallbiznis/plantops/internal/company/repository"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/plantops/internal/membership/repository"
	"github.com/smallbiznis/plantops/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type simFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	sessions  authdomain.SessionRepository
	simulator *Simulator
	resolver  *Resolver
	filter    *Filter
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()
	conn := db.NewTest(t,
		&companydomain.Company{},
		&membershipdomain.User{},
		&authdomain.Session{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(now)

	sessions := authrepo.New(conn)
	audit := auditsvc.NewService(auditsvc.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: clk,
	})
	return &simFixture{
		db:        conn,
		node:      node,
		sessions:  sessions,
		simulator: NewSimulator(SimulatorParams{Log: zap.NewNop(), Sessions: sessions, Audit: audit}),
		resolver:  NewResolver(zap.NewNop(), membershiprepo.NewRepository(conn), companyrepo.NewRepository(conn)),
		filter:    newTestFilter(t),
	}
}

func (f *simFixture) session(t *testing.T, platformRole membershipdomain.PlatformRole) *authdomain.Session {
	t.Helper()
	ctx := context.Background()
	companyID := f.node.Generate()
	require.NoError(t, companyrepo.NewRepository(f.db).Insert(ctx, &companydomain.Company{
		ID:              companyID,
		Name:            "Plant",
		Slug:            "plant-" + companyID.String(),
		PackageType:     companydomain.PackageFullAccess,
		OnboardingStage: companydomain.StageCompanyCreated,
	}))
	user := &membershipdomain.User{
		ID:           f.node.Generate(),
		CompanyID:    &companyID,
		Email:        f.node.Generate().String() + "@example.com",
		Role:         membershipdomain.RoleAdmin,
		PlatformRole: platformRole,
	}
	require.NoError(t, membershiprepo.NewRepository(f.db).InsertUser(ctx, user))
	session := &authdomain.Session{
		ID:               f.node.Generate(),
		UserID:           user.ID,
		SessionTokenHash: f.node.Generate().String(),
		ExpiresAt:        now.Add(time.Hour),
	}
	require.NoError(t, f.sessions.CreateSession(ctx, session))
	return session
}

func (f *simFixture) state(t *testing.T, sessionID snowflake.ID) *State {
	t.Helper()
	session, err := f.sessions.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	state, err := f.resolver.Resolve(context.Background(), session)
	require.NoError(t, err)
	return state
}

func TestSwitchRequiresPlatformAdmin(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()

	s := f.session(t, membershipdomain.CustomerUser)
	actor := f.state(t, s.ID)

	_, err := f.simulator.SwitchRole(ctx, s.ID, *actor, membershipdomain.RoleTech)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.simulator.SwitchPackage(ctx, s.ID, *actor, ptr(companydomain.PackageTroubleshooting))
	assert.ErrorIs(t, err, ErrUnauthorized)

	stored := f.state(t, s.ID)
	assert.Nil(t, stored.SimulatedRole)
	assert.Nil(t, stored.SimulatedPackage)
}

func TestSwitchRejectsOtherSessions(t *testing.T) {
	f := newSimFixture(t)
	a := f.session(t, membershipdomain.PlatformAdmin)
	b := f.session(t, membershipdomain.PlatformAdmin)

	_, err := f.simulator.SwitchRole(context.Background(), b.ID, *f.state(t, a.ID), membershipdomain.RoleTech)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSwitchRoleClearsPackageSimulation(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()
	s := f.session(t, membershipdomain.PlatformAdmin)

	next, err := f.simulator.SwitchPackage(ctx, s.ID, *f.state(t, s.ID), ptr(companydomain.PackageTroubleshooting))
	require.NoError(t, err)
	require.NotNil(t, next.SimulatedPackage)

	next, err = f.simulator.SwitchRole(ctx, s.ID, *f.state(t, s.ID), membershipdomain.RoleManager)
	require.NoError(t, err)
	assert.Nil(t, next.SimulatedPackage)

	stored := f.state(t, s.ID)
	require.NotNil(t, stored.SimulatedRole)
	assert.Equal(t, membershipdomain.RoleManager, *stored.SimulatedRole)
	assert.Nil(t, stored.SimulatedPackage)
	assert.Equal(t, membershipdomain.RoleAdmin, stored.Role, "persisted role untouched")
}

func TestSwitchPackageClearsRoleSimulation(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()
	s := f.session(t, membershipdomain.PlatformAdmin)

	_, err := f.simulator.SwitchRole(ctx, s.ID, *f.state(t, s.ID), membershipdomain.RoleTech)
	require.NoError(t, err)
	require.False(t, f.filter.Allow(*f.state(t, s.ID), SurfaceBilling, now).Allowed)

	next, err := f.simulator.SwitchPackage(ctx, s.ID, *f.state(t, s.ID), ptr(companydomain.PackageOperations))
	require.NoError(t, err)
	assert.Nil(t, next.SimulatedRole)
	require.NotNil(t, next.SimulatedPackage)

	stored := f.state(t, s.ID)
	assert.Nil(t, stored.SimulatedRole)
	require.NotNil(t, stored.SimulatedPackage)
	assert.Equal(t, companydomain.PackageOperations, *stored.SimulatedPackage)
	assert.True(t, f.filter.Allow(*stored, SurfaceBilling, now).Allowed, "package preview runs as admin")
	assert.False(t, f.filter.Allow(*stored, SurfaceTroubleshooting, now).Allowed)
}

func TestResolverRejectsSessionWithBothSimulations(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()
	s := f.session(t, membershipdomain.PlatformAdmin)
	role, pkg := "tech", "operations"
	require.NoError(t, f.sessions.UpdateSimulation(ctx, s.ID, &role, &pkg))

	session, err := f.sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, session)
	assert.ErrorIs(t, err, authdomain.ErrInvalidSession)
}

func TestSwitchPackageNilClearsEverything(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()
	s := f.session(t, membershipdomain.PlatformAdmin)

	_, err := f.simulator.SwitchRole(ctx, s.ID, *f.state(t, s.ID), membershipdomain.RoleTech)
	require.NoError(t, err)

	_, err = f.simulator.SwitchPackage(ctx, s.ID, *f.state(t, s.ID), nil)
	require.NoError(t, err)
	stored := f.state(t, s.ID)
	assert.Nil(t, stored.SimulatedRole)
	assert.Nil(t, stored.SimulatedPackage)
	assert.Equal(t, Surfaces, f.filter.Allowed(*stored, now))

	_, err = f.simulator.SwitchPackage(ctx, s.ID, *stored, ptr(companydomain.PackageType("gold")))
	assert.ErrorIs(t, err, companydomain.ErrInvalidPackageType)
}

func TestConcurrentSessionsDoNotShareSimulation(t *testing.T) {
	f := newSimFixture(t)
	ctx := context.Background()
	a := f.session(t, membershipdomain.PlatformAdmin)
	b := f.session(t, membershipdomain.PlatformAdmin)

	stateA := f.state(t, a.ID)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.simulator.SwitchPackage(ctx, a.ID, *stateA, ptr(companydomain.PackageTroubleshooting))
		assert.NoError(t, err)
	}()
	for i := 0; i < 10; i++ {
		assert.True(t, f.filter.Allow(*f.state(t, b.ID), SurfaceWorkOrders, now).Allowed)
	}
	wg.Wait()

	assert.False(t, f.filter.Allow(*f.state(t, a.ID), SurfaceWorkOrders, now).Allowed)
	assert.True(t, f.filter.Allow(*f.state(t, b.ID), SurfaceWorkOrders, now).Allowed)
}

func TestSimulationIsAudited(t *testing.T) {
	f := newSimFixture(t)
	s := f.session(t, membershipdomain.PlatformAdmin)

	_, err := f.simulator.SwitchRole(context.Background(), s.ID, *f.state(t, s.ID), membershipdomain.RoleTech)
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "simulation.role").Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].CompanyID)
	assert.Equal(t, "tech", logs[0].Metadata["simulated_role"])
}

func TestResolverIgnoresSimulationForCustomers(t *testing.T) {
	f := newSimFixture(t)
	s := f.session(t, membershipdomain.CustomerUser)
	role := "tech"
	require.NoError(t, f.sessions.UpdateSimulation(context.Background(), s.ID, &role, nil))

	state := f.state(t, s.ID)
	assert.Nil(t, state.SimulatedRole)
	require.NotNil(t, state.CompanyID)
	assert.Equal(t, companydomain.PackageFullAccess, state.PackageType)
}
