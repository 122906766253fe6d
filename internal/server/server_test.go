package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/plantops/internal/access"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	auditrepo "github.com/smallbiznis/plantops/internal/audit/repository"
	auditsvc "github.com/smallbiznis/plantops/internal/audit/service"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	authrepo "github.com/smallbiznis/plantops/internal/auth/repository"
	authsvc "github.com/smallbiznis/plantops/internal/auth/service"
	"github.com/smallbiznis/plantops/internal/auth/session"
	"github.com/smallbiznis/plantops/internal/billing"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	companyrepo "github.com/smallbiznis/plantops/internal/company/repository"
	companysvc "github.com/smallbiznis/plantops/internal/company/service"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/plantops/internal/membership/repository"
	membershipsvc "github.com/smallbiznis/plantops/internal/membership/service"
	"github.com/smallbiznis/plantops/internal/observability"
	obsmetrics "github.com/smallbiznis/plantops/internal/observability/metrics"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"github.com/smallbiznis/plantops/internal/signup"
	"github.com/smallbiznis/plantops/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	router    *gin.Engine
	db        *gorm.DB
	clock     *clock.FakeClock
	auth      authdomain.Service
	seats     seatservice.Service
	companies companydomain.Service
	users     membershipdomain.Repository
	node      *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := db.NewTest(t,
		&companydomain.Company{},
		&membershipdomain.User{},
		&membershipdomain.Invitation{},
		&authdomain.Session{},
		&auditdomain.AuditLog{},
	)
	for _, table := range companydomain.OwnedTables {
		require.NoError(t, conn.Exec(fmt.Sprintf(`CREATE TABLE %s (id INTEGER PRIMARY KEY, company_id INTEGER NOT NULL)`, table)).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	cfg := config.Config{
		PlatformAdminBypassEnabled: true,
		Trial:                      config.TrialConfig{Duration: 14 * 24 * time.Hour, ManagerSeats: 2, TechSeats: 3},
		Invitation:                 config.InvitationConfig{TTL: 48 * time.Hour},
	}
	licensing := config.NewStaticLicensingConfigHolder(config.DefaultLicensingConfig())

	audit := auditsvc.NewService(auditsvc.Params{DB: conn, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: clk})
	companyRepo := companyrepo.NewRepository(conn)
	companies := companysvc.NewService(companysvc.Params{
		DB: conn, Log: log, GenID: node, Repo: companyRepo, Audit: audit, Clock: clk, Cfg: cfg,
	})
	users := membershiprepo.NewRepository(conn)
	membership := membershipsvc.NewService(membershipsvc.Params{
		DB: conn, Log: log, Repo: users, Audit: audit, Clock: clk, Licensing: licensing,
	})
	seats := seatservice.NewService(seatservice.Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Companies: companyRepo,
		Members:   users,
		Audit:     audit,
		Clock:     clk,
		Cfg:       cfg,
		Licensing: licensing,
	})
	sessions := authrepo.New(conn)
	auth := authsvc.New(authsvc.Params{Log: log, GenID: node, Sessions: sessions, Users: users, Clock: clk})

	enforcer, err := access.NewMemoryEnforcer()
	require.NoError(t, err)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware(nil))
	NewServer(ServerParams{
		Gin:        router,
		Cfg:        cfg,
		Log:        log,
		Clock:      clk,
		Authsvc:    auth,
		Sessions:   session.NewManager(cfg, clk),
		Resolver:   access.NewResolver(log, users, companyRepo),
		Filter:     access.NewFilter(log, enforcer, licensing),
		Simulator:  access.NewSimulator(access.SimulatorParams{Log: log, Sessions: sessions, Audit: audit}),
		CompanySvc: companies,
		Membership: membership,
		Users:      users,
		Seats:      seats,
		Signupsvc: signup.NewService(signup.Params{
			Log: log, Cfg: cfg, Auth: auth, Companies: companies, Users: users, Seats: seats,
		}),
		AuditSvc: audit,
		Webhook:  billing.NewWebhook(billing.Params{Log: log, Cfg: cfg, Companies: companies, Seats: seats}),
	})

	return &testEnv{
		router:    router,
		db:        conn,
		clock:     clk,
		auth:      auth,
		seats:     seats,
		companies: companies,
		users:     users,
		node:      node,
	}
}

func (e *testEnv) company(t *testing.T, name string, manager, tech int) *companydomain.Company {
	t.Helper()
	company, err := e.companies.Create(context.Background(), companydomain.CreateCompanyRequest{
		Name:                  name,
		PackageType:           companydomain.PackageFullAccess,
		PurchasedManagerSeats: manager,
		PurchasedTechSeats:    tech,
	})
	require.NoError(t, err)
	return company
}

func (e *testEnv) member(t *testing.T, companyID snowflake.ID, email string, role membershipdomain.Role) string {
	t.Helper()
	user, err := e.seats.AddUser(context.Background(), seatservice.AddUserRequest{
		CompanyID: companyID,
		Email:     email,
		Role:      role,
	})
	require.NoError(t, err)
	return e.login(t, user.ID)
}

func (e *testEnv) platformAdmin(t *testing.T) string {
	t.Helper()
	user := &membershipdomain.User{
		ID:           e.node.Generate(),
		Email:        "ops@plantops.test",
		PlatformRole: membershipdomain.PlatformAdmin,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, e.users.InsertUser(context.Background(), user))
	return e.login(t, user.ID)
}

func (e *testEnv) login(t *testing.T, userID snowflake.ID) string {
	t.Helper()
	result, err := e.auth.IssueSession(context.Background(), userID, "test", "127.0.0.1")
	require.NoError(t, err)
	return result.RawToken
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

type errorBody struct {
	Error struct {
		Type    string            `json:"type"`
		Errors  []ValidationError `json:"errors"`
		Details json.RawMessage   `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewEngine(observability.Config{}, obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()), nil)

	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	engine.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestMeRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Error.Type)

	resp = env.do(t, http.MethodGet, "/auth/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestSignupSetsSessionCookieAndGrantsAdminSurfaces(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/signup", "", map[string]string{
		"company_name": "Riverside Mill",
		"display_name": "Dana",
		"email":        "dana@riverside.test",
		"password":     "long-enough-pw",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	cookies := resp.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, session.DefaultCookieName, cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	env.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())

	var body meResponse
	require.NoError(t, json.Unmarshal(me.Body.Bytes(), &body))
	assert.Equal(t, membershipdomain.RoleAdmin, body.Access.EffectiveRole)
	assert.Equal(t, companydomain.PackageDemo, body.Access.EffectivePackage)
	assert.Contains(t, body.Access.Surfaces, access.SurfaceBilling)
	assert.NotContains(t, body.Access.Surfaces, access.SurfacePlatform)
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/signup", "", map[string]string{
		"company_name": "Riverside Mill",
		"email":        "dana@riverside.test",
		"password":     "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "validation_error", body.Error.Type)
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, "password", body.Error.Errors[0].Field)
}

func TestCreateInvitationRejectsWhenSeatsExhausted(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/invitations", admin, map[string]string{"email": "tech1@acme.test", "role": "tech"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = env.do(t, http.MethodPost, "/invitations", admin, map[string]string{"email": "tech2@acme.test", "role": "tech"})
	require.Equal(t, http.StatusConflict, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "seats_exhausted", body.Error.Type)

	var details seatsExhaustedDetails
	require.NoError(t, json.Unmarshal(body.Error.Details, &details))
	assert.EqualValues(t, "tech", details.Class)
	assert.Equal(t, 0, details.Breakdown.Available.Tech)
	assert.Equal(t, 1, details.Breakdown.Pending.Tech)

	resp = env.do(t, http.MethodGet, "/invitations", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Data []membershipdomain.Invitation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
}

func TestDuplicateInvitationConflicts(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 2, 5)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	body := map[string]string{"email": "tech@acme.test", "role": "tech"}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/invitations", admin, body).Code)

	resp := env.do(t, http.MethodPost, "/invitations", admin, body)
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "duplicate_invitation", decodeError(t, resp).Error.Type)
}

func TestCancelInvitationFreesSeat(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/invitations", admin, map[string]string{"email": "tech@acme.test", "role": "tech"})
	require.Equal(t, http.StatusCreated, resp.Code)
	var created struct {
		Data membershipdomain.Invitation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = env.do(t, http.MethodDelete, "/invitations/"+created.Data.ID.String(), admin, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)

	resp = env.do(t, http.MethodGet, "/billing/seats", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var seats struct {
		Data struct {
			Available struct {
				Tech int `json:"tech"`
			} `json:"available"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &seats))
	assert.Equal(t, 1, seats.Data.Available.Tech)
}

func TestTechCannotReachUserManagement(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 2)
	tech := env.member(t, company.ID, "tech@acme.test", membershipdomain.RoleTech)

	resp := env.do(t, http.MethodPost, "/invitations", tech, map[string]string{"email": "x@acme.test", "role": "tech"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "forbidden", decodeError(t, resp).Error.Type)

	resp = env.do(t, http.MethodGet, "/billing/seats", tech, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestCustomerCannotAddressAnotherCompany(t *testing.T) {
	env := newTestEnv(t)
	mine := env.company(t, "Acme Plant", 1, 1)
	other := env.company(t, "Other Plant", 1, 1)
	admin := env.member(t, mine.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	resp := env.do(t, http.MethodGet, "/companies/"+other.ID.String()+"/users", admin, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodGet, "/companies/"+mine.ID.String()+"/users", admin, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAddUserAndChangeRoleAreSeatChecked(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 2)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)
	base := "/companies/" + company.ID.String()

	resp := env.do(t, http.MethodPost, base+"/users", admin, map[string]string{
		"email": "tech@acme.test", "display_name": "Tech", "password": "long-enough-pw", "role": "tech",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var created struct {
		Data membershipdomain.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = env.do(t, http.MethodPatch, base+"/users/"+created.Data.ID.String()+"/role", admin, map[string]string{"role": "manager"})
	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "seats_exhausted", decodeError(t, resp).Error.Type)

	resp = env.do(t, http.MethodDelete, base+"/users/"+created.Data.ID.String(), admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestCustomerCannotBypassSeatCheck(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 0)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/invitations", admin, map[string]any{
		"email": "tech@acme.test", "role": "tech", "bypass_seat_check": true,
	})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestPlatformAdminBypassOverProvisions(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 0)
	ops := env.platformAdmin(t)

	resp := env.do(t, http.MethodPost, "/companies/"+company.ID.String()+"/users", ops, map[string]any{
		"email": "tech@acme.test", "role": "tech",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = env.do(t, http.MethodGet, "/companies/"+company.ID.String()+"/seats", ops, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var seats struct {
		Data struct {
			Used struct {
				Tech int `json:"tech"`
			} `json:"used"`
			Available struct {
				Tech int `json:"tech"`
			} `json:"available"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &seats))
	assert.Equal(t, 1, seats.Data.Used.Tech)
	assert.Equal(t, 0, seats.Data.Available.Tech)
}

func TestPlatformAdminInvitesPastFullCompany(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 0)
	ops := env.platformAdmin(t)

	resp := env.do(t, http.MethodPost, "/invitations?company_id="+company.ID.String(), ops, map[string]any{
		"email": "tech@acme.test", "role": "tech",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = env.do(t, http.MethodGet, "/invitations?company_id="+company.ID.String(), ops, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "tech@acme.test")
}

func TestSwitchRoleRequiresPlatformAdmin(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/auth/switch-role", admin, map[string]string{"role": "tech"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "platform_admin_required", decodeError(t, resp).Error.Type)
}

func TestPlatformAdminSimulationNarrowsAndClears(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	ops := env.platformAdmin(t)
	seatsPath := "/billing/seats?company_id=" + company.ID.String()

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, seatsPath, ops, nil).Code)

	resp := env.do(t, http.MethodPost, "/auth/switch-role", ops, map[string]string{"role": "tech"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var view accessResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, membershipdomain.RoleTech, view.EffectiveRole)
	assert.True(t, view.Simulating)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, seatsPath, ops, nil).Code)

	resp = env.do(t, http.MethodPost, "/auth/switch-package", ops, map[string]any{"package_type": "troubleshooting"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Contains(t, view.Surfaces, access.SurfaceTroubleshooting)
	assert.Contains(t, view.Surfaces, access.SurfacePlatform)
	assert.NotContains(t, view.Surfaces, access.SurfaceBilling)
	assert.Equal(t, companydomain.PackageTroubleshooting, view.EffectivePackage)
	assert.Equal(t, membershipdomain.RoleAdmin, view.EffectiveRole, "package preview drops the simulated role")

	resp = env.do(t, http.MethodPost, "/auth/switch-package", ops, map[string]any{"package_type": "operations"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, seatsPath, ops, nil).Code)

	resp = env.do(t, http.MethodPost, "/auth/switch-package", ops, map[string]any{"package_type": nil})
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.False(t, view.Simulating)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, seatsPath, ops, nil).Code)
}

func TestSwitchPackageRejectsUnknownPackage(t *testing.T) {
	env := newTestEnv(t)
	ops := env.platformAdmin(t)

	resp := env.do(t, http.MethodPost, "/auth/switch-package", ops, map[string]any{"package_type": "gold"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAcceptInvitationSignsIn(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	invite, err := env.seats.CreateInvitation(context.Background(), seatservice.CreateInvitationRequest{
		CompanyID: company.ID,
		Email:     "tech@acme.test",
		Role:      membershipdomain.RoleTech,
	})
	require.NoError(t, err)

	resp := env.do(t, http.MethodPost, "/invitations/accept", "", map[string]string{
		"token": invite.RawToken, "display_name": "Tech", "password": "long-enough-pw",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.NotEmpty(t, resp.Result().Cookies())

	resp = env.do(t, http.MethodPost, "/invitations/accept", "", map[string]string{
		"token": invite.RawToken, "display_name": "Tech", "password": "long-enough-pw",
	})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAcceptExpiredInvitationIsGone(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	invite, err := env.seats.CreateInvitation(context.Background(), seatservice.CreateInvitationRequest{
		CompanyID: company.ID,
		Email:     "tech@acme.test",
		Role:      membershipdomain.RoleTech,
	})
	require.NoError(t, err)
	env.clock.Advance(49 * time.Hour)

	resp := env.do(t, http.MethodPost, "/invitations/accept", "", map[string]string{
		"token": invite.RawToken, "password": "long-enough-pw",
	})
	assert.Equal(t, http.StatusGone, resp.Code)
	assert.Equal(t, "invitation_expired", decodeError(t, resp).Error.Type)
}

func TestLicenseOverrideAndDeleteArePlatformOnly(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)
	ops := env.platformAdmin(t)
	base := "/companies/" + company.ID.String()

	resp := env.do(t, http.MethodPost, base+"/licenses", admin, map[string]int{"purchased_manager_seats": 9, "purchased_tech_seats": 9})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPost, base+"/licenses", ops, map[string]int{"purchased_manager_seats": 3, "purchased_tech_seats": 4})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	got, err := env.companies.GetByID(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PurchasedManagerSeats)
	assert.Equal(t, 4, got.PurchasedTechSeats)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, base, admin, nil).Code)

	resp = env.do(t, http.MethodDelete, base, ops, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	_, err = env.companies.GetByID(context.Background(), company.ID)
	assert.ErrorIs(t, err, companydomain.ErrCompanyNotFound)

	resp = env.do(t, http.MethodDelete, base, ops, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "company_not_found", decodeError(t, resp).Error.Type)
}

func TestAdvanceOnboardingNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)
	path := "/companies/" + company.ID.String() + "/onboarding"

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, admin, map[string]string{"stage": "payment_complete"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, admin, map[string]string{"stage": "plan_selected"}).Code)

	got, err := env.companies.GetByID(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, companydomain.StagePaymentComplete, got.OnboardingStage)

	resp := env.do(t, http.MethodPost, path, admin, map[string]string{"stage": "launched"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAuditLogsListCompanyEntries(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/invitations", admin, map[string]string{"email": "t@acme.test", "role": "tech"}).Code)

	resp := env.do(t, http.MethodGet, "/companies/"+company.ID.String()+"/audit-logs?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var list struct {
		Data []auditdomain.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.NotEmpty(t, list.Data)

	resp = env.do(t, http.MethodGet, "/companies/"+company.ID.String()+"/audit-logs?limit=zero", admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStripeWebhookWithoutSecretIsUnavailable(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/billing/webhooks/stripe", "", map[string]string{"type": "customer.subscription.updated"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	company := env.company(t, "Acme Plant", 1, 1)
	admin := env.member(t, company.ID, "admin@acme.test", membershipdomain.RoleAdmin)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/auth/me", admin, nil).Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/auth/logout", admin, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/auth/me", admin, nil).Code)
}
