package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	"github.com/smallbiznis/plantops/internal/clock"
	"github.com/smallbiznis/plantops/internal/config"
	"github.com/smallbiznis/plantops/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Audit     auditdomain.Service
	Clock     clock.Clock
	Licensing *config.LicensingConfigHolder
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	audit     auditdomain.Service
	clock     clock.Clock
	licensing *config.LicensingConfigHolder
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("membership.service"),
		repo:      p.Repo,
		audit:     p.Audit,
		clock:     p.Clock,
		licensing: p.Licensing,
	}
}

func (s *Service) ListUsers(ctx context.Context, companyID snowflake.ID) ([]domain.User, error) {
	return s.repo.ListUsersByCompany(ctx, companyID)
}

// ListInvitations reports pending rows past their expiry as expired when lazy
// expiry is enabled, without writing.
func (s *Service) ListInvitations(ctx context.Context, companyID snowflake.ID) ([]domain.Invitation, error) {
	invitations, err := s.repo.ListInvitationsByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !s.licensing.Get().LazyInviteExpiry {
		return invitations, nil
	}
	now := s.clock.Now()
	for i := range invitations {
		if invitations[i].Status == domain.InvitationPending && !invitations[i].Live(now) {
			invitations[i].Status = domain.InvitationExpired
		}
	}
	return invitations, nil
}

func (s *Service) CancelInvitation(ctx context.Context, companyID, invitationID snowflake.ID) error {
	n, err := s.repo.DeleteInvitation(ctx, companyID, invitationID)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInvitationNotFound
	}
	s.record(ctx, companyID, "invitation.cancelled", "invitation", invitationID)
	return nil
}

// RemoveUser deletes the user row and its sessions, releasing the seat.
func (s *Service) RemoveUser(ctx context.Context, companyID, userID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteUserSessions(ctx, userID); err != nil {
			return err
		}
		n, err := repo.DeleteUser(ctx, companyID, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, "seat.user_removed", "user", userID)
	return nil
}

func (s *Service) SweepExpiredInvitations(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStaleInvitations(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired stale invitations", zap.Int64("count", n))
	}
	return n, nil
}

func (s *Service) record(ctx context.Context, companyID snowflake.ID, action, targetType string, targetID snowflake.ID) {
	target := targetID.String()
	if err := s.audit.Record(ctx, auditdomain.Entry{
		CompanyID:  &companyID,
		Action:     action,
		TargetType: targetType,
		TargetID:   &target,
	}); err != nil {
		s.log.Warn("audit membership change", zap.String("action", action), zap.Error(err))
	}
}
