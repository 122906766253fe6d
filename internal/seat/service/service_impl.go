package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	"github.com/smallbiznis/plantops/internal/auth/credential"
	"github.com/smallbiznis/plantops/internal/clock"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/observability/metrics"
	"github.com/smallbiznis/plantops/internal/observability/tracing"
	"github.com/smallbiznis/plantops/internal/seat"
	"github.com/smallbiznis/plantops/pkg/db"
	"github.com/smallbiznis/plantops/pkg/rls"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxAttempts bounds a mutation to one retry after a serialization failure.
const maxAttempts = 2

var tracer = otel.Tracer("plantops/seat")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Companies companydomain.Repository
	Members   membershipdomain.Repository
	Audit     auditdomain.Service
	Clock     clock.Clock
	Cfg       config.Config
	Licensing *config.LicensingConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
	Notifier  Notifier         `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	companies     companydomain.Repository
	members       membershipdomain.Repository
	audit         auditdomain.Service
	clock         clock.Clock
	licensing     *config.LicensingConfigHolder
	metrics       *metrics.Metrics
	notifier      Notifier
	bypassEnabled bool
	inviteTTL     time.Duration
}

func NewService(p Params) Service {
	ttl := p.Cfg.Invitation.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &service{
		db:            p.DB,
		log:           p.Log.Named("seat.service"),
		genID:         p.GenID,
		companies:     p.Companies,
		members:       p.Members,
		audit:         p.Audit,
		clock:         p.Clock,
		licensing:     p.Licensing,
		metrics:       p.Metrics,
		notifier:      p.Notifier,
		bypassEnabled: p.Cfg.PlatformAdminBypassEnabled,
		inviteTTL:     ttl,
	}
}

// snapshot is the state read under the company lock.
type snapshot struct {
	company   *companydomain.Company
	breakdown seat.Breakdown
	now       time.Time
}

func (s *service) AddUser(ctx context.Context, req AddUserRequest) (*membershipdomain.User, error) {
	if !req.Role.Valid() {
		return nil, membershipdomain.ErrInvalidRole
	}
	email := membershipdomain.NormalizeEmail(req.Email)
	if req.UserID == 0 && !validEmail(email) {
		return nil, membershipdomain.ErrInvalidEmail
	}
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	bypass := s.bypass(req.Actor, req.BypassSeatCheck)
	class, _ := seat.ClassOf(string(req.Role))

	var user *membershipdomain.User
	err = s.runAtomic(ctx, "add_user", req.CompanyID, func(tx *gorm.DB, snap snapshot) error {
		members := s.members.WithTx(tx)
		existing, err := findExisting(ctx, members, req.UserID, email)
		if err != nil {
			return err
		}
		if existing != nil && existing.CompanyID != nil {
			// Only platform admins may move a user between companies.
			if *existing.CompanyID == req.CompanyID || req.Actor.PlatformRole != membershipdomain.PlatformAdmin {
				return membershipdomain.ErrUserExists
			}
		}

		if err := s.checkSeat(ctx, "add_user", snap.breakdown, class, bypass); err != nil {
			return err
		}

		if existing != nil {
			if err := members.UpdateUserCompany(ctx, existing.ID, req.CompanyID, req.Role); err != nil {
				return err
			}
			if user, err = members.FindUserByID(ctx, existing.ID); err != nil {
				return err
			}
		} else {
			companyID := req.CompanyID
			user = &membershipdomain.User{
				ID:           s.genID.Generate(),
				CompanyID:    &companyID,
				Email:        email,
				DisplayName:  displayName(req.DisplayName, email),
				PasswordHash: passwordHash,
				Role:         req.Role,
				PlatformRole: membershipdomain.CustomerUser,
				CreatedAt:    snap.now,
				UpdatedAt:    snap.now,
			}
			if err := members.InsertUser(ctx, user); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return membershipdomain.ErrUserExists
				}
				return err
			}
		}

		return s.recordTx(ctx, tx, req.CompanyID, req.Actor, "seat.user_added", "user", user.ID, map[string]any{
			"role":     string(req.Role),
			"bypassed": bypass,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*InvitationResult, error) {
	if !req.Role.Valid() {
		return nil, membershipdomain.ErrInvalidRole
	}
	email := membershipdomain.NormalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, membershipdomain.ErrInvalidEmail
	}
	rawToken, err := credential.NewToken()
	if err != nil {
		return nil, err
	}

	bypass := s.bypass(req.Actor, req.BypassSeatCheck)
	class, _ := seat.ClassOf(string(req.Role))

	var invitation membershipdomain.Invitation
	err = s.runAtomic(ctx, "create_invitation", req.CompanyID, func(tx *gorm.DB, snap snapshot) error {
		members := s.members.WithTx(tx)

		_, err := members.FindLiveInvitation(ctx, req.CompanyID, email, snap.now)
		switch {
		case err == nil:
			s.metrics.RecordSeatCheck(ctx, "create_invitation", string(class), "duplicate")
			return seat.ErrDuplicateInvitation
		case !errors.Is(err, membershipdomain.ErrInvitationNotFound):
			return err
		}

		existing, err := members.FindUserByEmail(ctx, email)
		switch {
		case err == nil:
			if existing.CompanyID != nil && *existing.CompanyID == req.CompanyID {
				return membershipdomain.ErrUserExists
			}
		case !errors.Is(err, membershipdomain.ErrUserNotFound):
			return err
		}

		if err := s.checkSeat(ctx, "create_invitation", snap.breakdown, class, bypass); err != nil {
			return err
		}

		invitation = membershipdomain.Invitation{
			ID:        s.genID.Generate(),
			CompanyID: req.CompanyID,
			Email:     email,
			Role:      req.Role,
			Status:    membershipdomain.InvitationPending,
			ExpiresAt: snap.now.Add(s.inviteTTL),
			TokenHash: credential.HashToken(rawToken),
			CreatedAt: snap.now,
		}
		if req.Actor.UserID != 0 {
			invitedBy := req.Actor.UserID
			invitation.InvitedBy = &invitedBy
		}
		if err := members.InsertInvitation(ctx, &invitation); err != nil {
			return err
		}

		return s.recordTx(ctx, tx, req.CompanyID, req.Actor, "invitation.created", "invitation", invitation.ID, map[string]any{
			"email":    email,
			"role":     string(req.Role),
			"bypassed": bypass,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.InvitationCreated(ctx, invitation, rawToken); err != nil {
			s.log.Warn("failed to enqueue invitation email",
				zap.String("invitation_id", invitation.ID.String()),
				zap.Error(err),
			)
		}
	}
	return &InvitationResult{Invitation: invitation, RawToken: rawToken}, nil
}

func (s *service) ChangeRole(ctx context.Context, req ChangeRoleRequest) (*membershipdomain.User, error) {
	if !req.Role.Valid() {
		return nil, membershipdomain.ErrInvalidRole
	}
	bypass := s.bypass(req.Actor, req.BypassSeatCheck)

	var user *membershipdomain.User
	err := s.runAtomic(ctx, "change_role", req.CompanyID, func(tx *gorm.DB, snap snapshot) error {
		members := s.members.WithTx(tx)
		current, err := members.FindUserByID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if current.CompanyID == nil || *current.CompanyID != req.CompanyID {
			return membershipdomain.ErrUserNotFound
		}
		if current.Role == req.Role {
			user = current
			return nil
		}

		from, _ := seat.ClassOf(string(current.Role))
		to, _ := seat.ClassOf(string(req.Role))
		if from != to {
			if err := s.checkSeat(ctx, "change_role", snap.breakdown, to, bypass); err != nil {
				return err
			}
		}

		if err := members.UpdateUserRole(ctx, req.UserID, req.Role); err != nil {
			return err
		}
		if user, err = members.FindUserByID(ctx, req.UserID); err != nil {
			return err
		}
		return s.recordTx(ctx, tx, req.CompanyID, req.Actor, "seat.role_changed", "user", req.UserID, map[string]any{
			"from":     string(current.Role),
			"to":       string(req.Role),
			"bypassed": bypass,
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AcceptInvitation turns a pending seat into a used one, so no seat check is
// needed.
func (s *service) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*membershipdomain.User, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, membershipdomain.ErrInvitationNotFound
	}
	tokenHash := credential.HashToken(token)

	pending, err := s.members.FindInvitationByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var user *membershipdomain.User
	err = s.runAtomic(ctx, "accept_invitation", pending.CompanyID, func(tx *gorm.DB, snap snapshot) error {
		members := s.members.WithTx(tx)
		inv, err := members.FindInvitationByTokenHash(ctx, tokenHash)
		if err != nil {
			return err
		}
		switch {
		case inv.Status == membershipdomain.InvitationAccepted:
			return membershipdomain.ErrInvitationUsed
		case !inv.Live(snap.now):
			return membershipdomain.ErrInvitationExpired
		}

		existing, err := members.FindUserByEmail(ctx, inv.Email)
		switch {
		case err == nil:
			if existing.CompanyID != nil {
				return membershipdomain.ErrUserExists
			}
			if err := members.UpdateUserCompany(ctx, existing.ID, inv.CompanyID, inv.Role); err != nil {
				return err
			}
			if user, err = members.FindUserByID(ctx, existing.ID); err != nil {
				return err
			}
		case errors.Is(err, membershipdomain.ErrUserNotFound):
			if passwordHash == nil {
				return credential.ErrWeakPassword
			}
			companyID := inv.CompanyID
			user = &membershipdomain.User{
				ID:           s.genID.Generate(),
				CompanyID:    &companyID,
				Email:        inv.Email,
				DisplayName:  displayName(req.DisplayName, inv.Email),
				PasswordHash: passwordHash,
				Role:         inv.Role,
				PlatformRole: membershipdomain.CustomerUser,
				CreatedAt:    snap.now,
				UpdatedAt:    snap.now,
			}
			if err := members.InsertUser(ctx, user); err != nil {
				return err
			}
		default:
			return err
		}

		if err := members.MarkInvitationAccepted(ctx, inv.ID, snap.now); err != nil {
			return err
		}
		return s.recordTx(ctx, tx, inv.CompanyID, Actor{UserID: user.ID}, "invitation.accepted", "invitation", inv.ID, map[string]any{
			"role": string(inv.Role),
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Breakdown reads outside any transaction. The result may be stale by the
// time a mutator runs; mutators recompute under the lock.
func (s *service) Breakdown(ctx context.Context, companyID snowflake.ID) (seat.Breakdown, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return seat.Breakdown{}, err
	}
	users, err := s.members.ListUsersByCompany(ctx, companyID)
	if err != nil {
		return seat.Breakdown{}, err
	}
	invitations, err := s.members.ListInvitationsByCompany(ctx, companyID)
	if err != nil {
		return seat.Breakdown{}, err
	}
	return s.compute(company, users, invitations, s.clock.Now(), s.licensing.Get().LazyInviteExpiry), nil
}

// runAtomic executes fn under the company lock, retrying once when the
// database reports a serialization failure or deadlock.
func (s *service) runAtomic(ctx context.Context, op string, companyID snowflake.ID, fn func(tx *gorm.DB, snap snapshot) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.attempt(ctx, op, attempt, companyID, fn)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !db.IsSerializationFailure(err) {
			return err
		}
		s.metrics.RecordConflictRetry(ctx, op)
		s.log.Warn("seat mutation conflict",
			zap.String("operation", op),
			zap.String("company_id", companyID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	s.metrics.RecordSeatCheck(ctx, op, "", "conflict")
	return fmt.Errorf("%w: %s", seat.ErrConcurrentUpdateConflict, tracing.SafeError(err))
}

func (s *service) attempt(ctx context.Context, op string, attempt int, companyID snowflake.ID, fn func(tx *gorm.DB, snap snapshot) error) error {
	ctx, span := tracer.Start(ctx, "seat."+op, trace.WithAttributes(
		attribute.String("company_id", companyID.String()),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	err := db.Locked(ctx, s.db, func(tx *gorm.DB) error {
		company, err := s.companies.WithTx(tx).FindByIDForUpdate(ctx, companyID)
		if err != nil {
			return err
		}
		if err := rls.WithCompany(tx, companyID.Int64()); err != nil {
			return err
		}

		members := s.members.WithTx(tx)
		now := s.clock.Now()
		lazy := s.licensing.Get().LazyInviteExpiry
		if lazy {
			expired, err := members.ExpireInvitations(ctx, companyID, now)
			if err != nil {
				return err
			}
			if expired > 0 {
				s.log.Debug("expired invitations", zap.String("company_id", companyID.String()), zap.Int64("count", expired))
			}
		}

		users, err := members.ListUsersByCompany(ctx, companyID)
		if err != nil {
			return err
		}
		invitations, err := members.ListInvitationsByCompany(ctx, companyID)
		if err != nil {
			return err
		}

		return fn(tx, snapshot{
			company:   company,
			breakdown: s.compute(company, users, invitations, now, lazy),
			now:       now,
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, tracing.SafeError(err).Error())
	}
	return err
}

func (s *service) compute(company *companydomain.Company, users []membershipdomain.User, invitations []membershipdomain.Invitation, now time.Time, lazy bool) seat.Breakdown {
	members := make([]seat.Member, 0, len(users))
	for _, u := range users {
		members = append(members, seat.Member{Role: string(u.Role)})
	}
	invites := make([]seat.Invitation, 0, len(invitations))
	for _, inv := range invitations {
		invites = append(invites, seat.Invitation{
			Role:      string(inv.Role),
			Status:    string(inv.Status),
			ExpiresAt: inv.ExpiresAt,
		})
	}

	b := seat.Compute(
		seat.Ceilings{Manager: company.PurchasedManagerSeats, Tech: company.PurchasedTechSeats},
		members,
		seat.LiveInvitations(invites, now, lazy),
	)
	if b.Unclassified > 0 {
		s.log.Warn("unknown roles counted as tech seats",
			zap.String("company_id", company.ID.String()),
			zap.Int("count", b.Unclassified),
		)
	}
	return b
}

func (s *service) checkSeat(ctx context.Context, op string, b seat.Breakdown, class seat.Class, bypass bool) error {
	err := seat.Check(b, class, 1)
	switch {
	case err == nil:
		s.metrics.RecordSeatCheck(ctx, op, string(class), "ok")
		return nil
	case bypass:
		s.metrics.RecordSeatCheck(ctx, op, string(class), "bypassed")
		s.log.Info("seat check bypassed by platform admin",
			zap.String("operation", op),
			zap.String("class", string(class)),
			zap.Int("available", b.AvailableFor(class)),
		)
		return nil
	default:
		s.metrics.RecordSeatCheck(ctx, op, string(class), "exhausted")
		return err
	}
}

func (s *service) bypass(actor Actor, requested bool) bool {
	return requested && s.bypassEnabled && actor.PlatformRole == membershipdomain.PlatformAdmin
}

func (s *service) recordTx(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, actor Actor, action, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	entry := auditdomain.Entry{
		CompanyID:  &companyID,
		Action:     action,
		TargetType: targetType,
		Metadata:   metadata,
	}
	target := targetID.String()
	entry.TargetID = &target
	if actor.UserID != 0 {
		actorID := actor.UserID.String()
		entry.ActorType = string(auditdomain.ActorTypeUser)
		entry.ActorID = &actorID
	}
	return s.audit.RecordTx(ctx, tx, entry)
}

func findExisting(ctx context.Context, members membershipdomain.Repository, userID snowflake.ID, email string) (*membershipdomain.User, error) {
	if userID != 0 {
		return members.FindUserByID(ctx, userID)
	}
	user, err := members.FindUserByEmail(ctx, email)
	if errors.Is(err, membershipdomain.ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

func hashPassword(password string) (*string, error) {
	if password == "" {
		return nil, nil
	}
	if err := credential.CheckStrength(password); err != nil {
		return nil, err
	}
	hash, err := credential.Hash(password)
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
