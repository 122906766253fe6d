package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/plantops/internal/access"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	"github.com/smallbiznis/plantops/internal/auth/session"
	"github.com/smallbiznis/plantops/internal/billing"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/observability"
	"github.com/smallbiznis/plantops/internal/observability/errorreport"
	obsmiddleware "github.com/smallbiznis/plantops/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/plantops/internal/observability/metrics"
	obstracing "github.com/smallbiznis/plantops/internal/observability/tracing"
	"github.com/smallbiznis/plantops/internal/ratelimit"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	signupdomain "github.com/smallbiznis/plantops/internal/signup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, reporter *errorreport.Reporter) *gin.Engine {
	r := gin.New()
	r.Use(reporter.GinMiddleware())
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware(reporter))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, reporter *errorreport.Reporter) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, reporter)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	clock        clock.Clock
	authsvc      authdomain.Service
	sessions     *session.Manager
	resolver     *access.Resolver
	filter       *access.Filter
	simulator    *access.Simulator
	companySvc   companydomain.Service
	membership   membershipdomain.Service
	users        membershipdomain.Repository
	seats        seatservice.Service
	signupsvc    signupdomain.Service
	auditSvc     auditdomain.Service
	webhook      *billing.Webhook
	inviteLimits *ratelimit.InvitationLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Clock        clock.Clock
	Authsvc      authdomain.Service
	Sessions     *session.Manager
	Resolver     *access.Resolver
	Filter       *access.Filter
	Simulator    *access.Simulator
	CompanySvc   companydomain.Service
	Membership   membershipdomain.Service
	Users        membershipdomain.Repository
	Seats        seatservice.Service
	Signupsvc    signupdomain.Service
	AuditSvc     auditdomain.Service
	Webhook      *billing.Webhook
	InviteLimits *ratelimit.InvitationLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		clock:        p.Clock,
		authsvc:      p.Authsvc,
		sessions:     p.Sessions,
		resolver:     p.Resolver,
		filter:       p.Filter,
		simulator:    p.Simulator,
		companySvc:   p.CompanySvc,
		membership:   p.Membership,
		users:        p.Users,
		seats:        p.Seats,
		signupsvc:    p.Signupsvc,
		auditSvc:     p.AuditSvc,
		webhook:      p.Webhook,
		inviteLimits: p.InviteLimits,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAuthRoutes()
	svc.registerInvitationRoutes()
	svc.registerBillingRoutes()
	svc.registerCompanyRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	s.engine.POST("/signup", s.Signup)

	auth := s.engine.Group("/auth")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.SessionRequired(), s.Me)
	auth.POST("/switch-role", s.SessionRequired(), s.RequirePlatformAdmin(), s.SwitchRole)
	auth.POST("/switch-package", s.SessionRequired(), s.RequirePlatformAdmin(), s.SwitchPackage)
}

func (s *Server) registerInvitationRoutes() {
	s.engine.POST("/invitations/accept", s.AcceptInvitation)

	invitations := s.engine.Group("/invitations", s.SessionRequired(), s.RequireSurface(access.SurfaceUsers))
	{
		invitations.GET("", s.ListInvitations)
		invitations.POST("", s.InvitationRateLimit(), s.CreateInvitation)
		invitations.DELETE("/:invitationId", s.CancelInvitation)
	}
}

func (s *Server) registerBillingRoutes() {
	billingGroup := s.engine.Group("/billing")

	billingGroup.POST("/webhooks/stripe", s.HandleStripeWebhook)
	billingGroup.GET("/seats", s.SessionRequired(), s.RequireSurface(access.SurfaceBilling), s.GetSeatBreakdown)
}

func (s *Server) registerCompanyRoutes() {
	companies := s.engine.Group("/companies/:id", s.SessionRequired())
	{
		companies.GET("/seats", s.RequireCompany(), s.RequireSurface(access.SurfaceUsers), s.GetSeatBreakdown)
		companies.GET("/users", s.RequireCompany(), s.RequireSurface(access.SurfaceUsers), s.ListUsers)
		companies.POST("/users", s.RequireCompany(), s.RequireSurface(access.SurfaceUsers), s.AddUser)
		companies.PATCH("/users/:userId/role", s.RequireCompany(), s.RequireSurface(access.SurfaceUsers), s.ChangeUserRole)
		companies.DELETE("/users/:userId", s.RequireCompany(), s.RequireSurface(access.SurfaceUsers), s.RemoveUser)
		companies.POST("/onboarding", s.RequireCompany(), s.RequireSurface(access.SurfaceSettings), s.AdvanceOnboarding)
		companies.GET("/audit-logs", s.RequireCompany(), s.RequireSurface(access.SurfaceSettings), s.ListAuditLogs)

		companies.POST("/licenses", s.RequirePlatformAdmin(), s.OverrideLicense)
		companies.DELETE("", s.RequirePlatformAdmin(), s.DeleteCompany)
	}
}
