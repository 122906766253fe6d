package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/auth/credential"
	"github.com/smallbiznis/plantops/internal/auth/domain"
	"github.com/smallbiznis/plantops/internal/clock"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sessionTTL = 7 * 24 * time.Hour

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Sessions domain.SessionRepository
	Users    membershipdomain.Repository
	Clock    clock.Clock
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	sessions domain.SessionRepository
	users    membershipdomain.Repository
	clock    clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("auth.service"),
		genID:    p.GenID,
		sessions: p.Sessions,
		users:    p.Users,
		clock:    p.Clock,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email := membershipdomain.NormalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !credential.Verify(req.Password, *user.PasswordHash) {
		s.log.Info("login rejected", zap.String("user_id", user.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}

	return s.open(ctx, user, req.UserAgent, req.IPAddress)
}

func (s *Service) IssueSession(ctx context.Context, userID snowflake.ID, userAgent, ipAddress string) (*domain.LoginResult, error) {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, user, userAgent, ipAddress)
}

func (s *Service) open(ctx context.Context, user *membershipdomain.User, userAgent, ipAddress string) (*domain.LoginResult, error) {
	rawToken, err := credential.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           user.ID,
		SessionTokenHash: credential.HashToken(rawToken),
		UserAgent:        strings.TrimSpace(userAgent),
		IPAddress:        strings.TrimSpace(ipAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		User:      user,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	session, err := s.lookup(ctx, rawToken)
	if err != nil {
		return err
	}
	return s.sessions.RevokeSession(ctx, session.ID, s.clock.Now())
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	session, err := s.lookup(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessions.UpdateLastSeen(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastSeenAt = now
	return session, nil
}

func (s *Service) lookup(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, credential.HashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return session, nil
}
