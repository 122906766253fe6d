package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	obscontext "github.com/smallbiznis/plantops/internal/observability/context"
	"github.com/smallbiznis/plantops/internal/observability/metrics"
	"github.com/smallbiznis/plantops/internal/providers/email"
	"github.com/smallbiznis/plantops/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sweepLockKey = "jobs:invitation:expire_sweep"
	sweepLockTTL = 5 * time.Minute
)

type HandlerParams struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Email      email.Provider
	Companies  companydomain.Repository
	Members    membershipdomain.Repository
	Membership membershipdomain.Service
	Clock      clock.Clock
	Locker     *ratelimit.Locker   `optional:"true"`
	Metrics    *metrics.JobMetrics `optional:"true"`
}

type Handler struct {
	log        *zap.Logger
	publicURL  string
	email      email.Provider
	companies  companydomain.Repository
	members    membershipdomain.Repository
	membership membershipdomain.Service
	clock      clock.Clock
	locker     *ratelimit.Locker
	metrics    *metrics.JobMetrics
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		log:        p.Log.Named("jobs.handler"),
		publicURL:  p.Cfg.PublicURL,
		email:      p.Email,
		companies:  p.Companies,
		members:    p.Members,
		membership: p.Membership,
		clock:      p.Clock,
		locker:     p.Locker,
		metrics:    p.Metrics,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeInvitationSendEmail, h.observe(TypeInvitationSendEmail, h.HandleInvitationEmail))
	mux.HandleFunc(TypeInvitationExpireSweep, h.observe(TypeInvitationExpireSweep, h.HandleExpireSweep))
}

func (h *Handler) observe(job string, fn asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		started := time.Now()
		ctx = obscontext.WithActor(ctx, "system", "worker")
		err := fn(ctx, t)
		h.metrics.ObserveJob(job, started, err)
		return err
	}
}

// HandleInvitationEmail sends the acceptance link. Invitations cancelled,
// accepted or expired before delivery are skipped.
func (h *Handler) HandleInvitationEmail(ctx context.Context, t *asynq.Task) error {
	var payload InvitationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	companyID, err := snowflake.ParseString(payload.CompanyID)
	if err != nil {
		return fmt.Errorf("parse company id: %v: %w", err, asynq.SkipRetry)
	}
	invitationID, err := snowflake.ParseString(payload.InvitationID)
	if err != nil {
		return fmt.Errorf("parse invitation id: %v: %w", err, asynq.SkipRetry)
	}
	log := h.log.With(zap.String("invitation_id", payload.InvitationID), zap.String("company_id", payload.CompanyID))

	invitation, err := h.members.FindInvitationByID(ctx, companyID, invitationID)
	if errors.Is(err, membershipdomain.ErrInvitationNotFound) {
		log.Info("invitation gone before delivery")
		return nil
	}
	if err != nil {
		return err
	}
	if !invitation.Live(h.clock.Now()) {
		log.Info("invitation no longer pending", zap.String("status", string(invitation.Status)))
		return nil
	}

	company, err := h.companies.FindByID(ctx, companyID)
	if errors.Is(err, companydomain.ErrCompanyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	body, err := email.Render(email.TemplateInvitation, map[string]any{
		"CompanyName": company.Name,
		"Role":        payload.Role,
		"AcceptURL":   h.acceptURL(payload.RawToken),
		"ExpiresAt":   payload.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	subject := fmt.Sprintf("You're invited to join %s", company.Name)
	if err := h.email.Send(ctx, []string{payload.Email}, subject, body); err != nil {
		return err
	}
	log.Info("invitation email sent")
	return nil
}

// HandleExpireSweep flips stale pending invitations to expired. Concurrent
// schedulers are fenced by a redis lock when one is available.
func (h *Handler) HandleExpireSweep(ctx context.Context, _ *asynq.Task) error {
	err := h.locker.WithLock(ctx, sweepLockKey, sweepLockTTL, func(ctx context.Context) error {
		n, err := h.membership.SweepExpiredInvitations(ctx)
		if err != nil {
			return err
		}
		h.metrics.AddExpiredInvitations(n)
		return nil
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		h.log.Debug("expire sweep already running elsewhere")
		return nil
	}
	return err
}

func (h *Handler) acceptURL(token string) string {
	return h.publicURL + "/invitations/accept?token=" + url.QueryEscape(token)
}
