package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	auditrepo "github.com/smallbiznis/plantops/internal/audit/repository"
	auditsvc "github.com/smallbiznis/plantops/internal/audit/service"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	companyrepo "github.com/smallbiznis/plantops/internal/company/repository"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/plantops/internal/membership/repository"
	membershipsvc "github.com/smallbiznis/plantops/internal/membership/service"
	"github.com/smallbiznis/plantops/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fixture struct {
	handler *Handler
	mailer  *recordingMailer
	members membershipdomain.Repository
	node    *snowflake.Node
	clock   *clock.FakeClock
	company *companydomain.Company
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := db.NewTest(t,
		&companydomain.Company{},
		&membershipdomain.User{},
		&membershipdomain.Invitation{},
		&auditdomain.AuditLog{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)

	companies := companyrepo.NewRepository(conn)
	members := membershiprepo.NewRepository(conn)
	company := &companydomain.Company{
		ID:              node.Generate(),
		Name:            "Northside Plant",
		Slug:            "northside-plant",
		PackageType:     companydomain.PackageFullAccess,
		OnboardingStage: companydomain.StageCompanyCreated,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	require.NoError(t, companies.Insert(context.Background(), company))

	mailer := &recordingMailer{}
	handler := NewHandler(HandlerParams{
		Log:       zap.NewNop(),
		Cfg:       config.Config{PublicURL: "https://app.example.com"},
		Email:     mailer,
		Companies: companies,
		Members:   members,
		Membership: membershipsvc.NewService(membershipsvc.Params{
			DB:   conn,
			Log:  zap.NewNop(),
			Repo: members,
			Audit: auditsvc.NewService(auditsvc.Params{
				DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: clk,
			}),
			Clock:     clk,
			Licensing: config.NewStaticLicensingConfigHolder(config.DefaultLicensingConfig()),
		}),
		Clock: clk,
	})
	return &fixture{handler: handler, mailer: mailer, members: members, node: node, clock: clk, company: company}
}

func (f *fixture) invitation(t *testing.T, status membershipdomain.InvitationStatus, expiresAt time.Time) membershipdomain.Invitation {
	t.Helper()
	inv := membershipdomain.Invitation{
		ID:        f.node.Generate(),
		CompanyID: f.company.ID,
		Email:     "tech@example.com",
		Role:      membershipdomain.RoleTech,
		Status:    status,
		ExpiresAt: expiresAt,
		TokenHash: "hash-" + f.node.Generate().String(),
		CreatedAt: testNow,
	}
	require.NoError(t, f.members.InsertInvitation(context.Background(), &inv))
	return inv
}

func emailTask(t *testing.T, inv membershipdomain.Invitation, token string) *asynq.Task {
	t.Helper()
	task, err := NewInvitationEmailTask(InvitationEmailPayload{
		InvitationID: inv.ID.String(),
		CompanyID:    inv.CompanyID.String(),
		Email:        inv.Email,
		Role:         string(inv.Role),
		RawToken:     token,
		ExpiresAt:    inv.ExpiresAt,
	})
	require.NoError(t, err)
	return task
}

func TestInvitationEmailSendsAcceptLink(t *testing.T) {
	f := newFixture(t)
	inv := f.invitation(t, membershipdomain.InvitationPending, testNow.Add(48*time.Hour))

	err := f.handler.HandleInvitationEmail(context.Background(), emailTask(t, inv, "tok123"))
	require.NoError(t, err)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, []string{"tech@example.com"}, mail.to)
	assert.Contains(t, mail.subject, "Northside Plant")
	assert.Contains(t, mail.body, "https://app.example.com/invitations/accept?token=tok123")
	assert.Contains(t, mail.body, "tech")
}

func TestInvitationEmailSkipsAcceptedInvitation(t *testing.T) {
	f := newFixture(t)
	inv := f.invitation(t, membershipdomain.InvitationAccepted, testNow.Add(48*time.Hour))

	require.NoError(t, f.handler.HandleInvitationEmail(context.Background(), emailTask(t, inv, "tok")))
	assert.Empty(t, f.mailer.sent)
}

func TestInvitationEmailSkipsExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	inv := f.invitation(t, membershipdomain.InvitationPending, testNow.Add(time.Hour))
	f.clock.Advance(2 * time.Hour)

	require.NoError(t, f.handler.HandleInvitationEmail(context.Background(), emailTask(t, inv, "tok")))
	assert.Empty(t, f.mailer.sent)
}

func TestInvitationEmailSkipsCancelledInvitation(t *testing.T) {
	f := newFixture(t)
	inv := membershipdomain.Invitation{ID: f.node.Generate(), CompanyID: f.company.ID, Email: "gone@example.com", Role: membershipdomain.RoleTech}

	require.NoError(t, f.handler.HandleInvitationEmail(context.Background(), emailTask(t, inv, "tok")))
	assert.Empty(t, f.mailer.sent)
}

func TestInvitationEmailRetriesSendFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	inv := f.invitation(t, membershipdomain.InvitationPending, testNow.Add(48*time.Hour))

	err := f.handler.HandleInvitationEmail(context.Background(), emailTask(t, inv, "tok"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestInvitationEmailBadPayloadSkipsRetry(t *testing.T) {
	f := newFixture(t)

	err := f.handler.HandleInvitationEmail(context.Background(), asynq.NewTask(TypeInvitationSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(InvitationEmailPayload{InvitationID: "x", CompanyID: "1"})
	err = f.handler.HandleInvitationEmail(context.Background(), asynq.NewTask(TypeInvitationSendEmail, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestExpireSweepFlipsStalePendingInvitations(t *testing.T) {
	f := newFixture(t)
	stale := f.invitation(t, membershipdomain.InvitationPending, testNow.Add(time.Hour))
	fresh := f.invitation(t, membershipdomain.InvitationPending, testNow.Add(72*time.Hour))
	f.clock.Advance(2 * time.Hour)

	require.NoError(t, f.handler.HandleExpireSweep(context.Background(), NewExpireSweepTask()))

	got, err := f.members.FindInvitationByID(context.Background(), f.company.ID, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.InvitationExpired, got.Status)

	got, err = f.members.FindInvitationByID(context.Background(), f.company.ID, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, membershipdomain.InvitationPending, got.Status)
}

func TestRegisterHandlersRoutesTaskTypes(t *testing.T) {
	f := newFixture(t)
	mux := asynq.NewServeMux()
	f.handler.RegisterHandlers(mux)

	_, pattern := mux.Handler(NewExpireSweepTask())
	assert.Equal(t, TypeInvitationExpireSweep, pattern)
	_, pattern = mux.Handler(asynq.NewTask(TypeInvitationSendEmail, nil))
	assert.Equal(t, TypeInvitationSendEmail, pattern)
}
