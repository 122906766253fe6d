package signup

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/plantops/internal/auth/credential"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"github.com/smallbiznis/plantops/internal/signup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Auth      authdomain.Service
	Companies companydomain.Service
	Users     membershipdomain.Repository
	Seats     seatservice.Service
}

type service struct {
	log       *zap.Logger
	trial     config.TrialConfig
	auth      authdomain.Service
	companies companydomain.Service
	users     membershipdomain.Repository
	seats     seatservice.Service
}

func NewService(p Params) domain.Service {
	return &service{
		log:       p.Log.Named("signup.service"),
		trial:     p.Cfg.Trial,
		auth:      p.Auth,
		companies: p.Companies,
		users:     p.Users,
		seats:     p.Seats,
	}
}

func (s *service) TrialSignup(ctx context.Context, req domain.TrialRequest) (*domain.Result, error) {
	companyName := strings.TrimSpace(req.CompanyName)
	email := membershipdomain.NormalizeEmail(req.Email)
	if companyName == "" || email == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := credential.CheckStrength(req.Password); err != nil {
		return nil, err
	}

	// Reject known emails before a company exists to roll back.
	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		return nil, membershipdomain.ErrUserExists
	} else if !errors.Is(err, membershipdomain.ErrUserNotFound) {
		return nil, err
	}

	company, err := s.companies.Create(ctx, companydomain.CreateCompanyRequest{
		Name:                  companyName,
		PackageType:           companydomain.PackageDemo,
		PurchasedManagerSeats: s.trial.ManagerSeats,
		PurchasedTechSeats:    s.trial.TechSeats,
	})
	if err != nil {
		return nil, err
	}

	user, err := s.seats.AddUser(ctx, seatservice.AddUserRequest{
		CompanyID:   company.ID,
		Email:       email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        membershipdomain.RoleAdmin,
	})
	if err != nil {
		s.discard(ctx, company, err)
		return nil, err
	}

	session, err := s.auth.IssueSession(ctx, user.ID, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}

	s.log.Info("trial company created",
		zap.String("company_id", company.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	return &domain.Result{
		Company:   company,
		User:      user,
		RawToken:  session.RawToken,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.SessionID,
	}, nil
}

// discard removes a company whose first admin could not be created. It runs
// detached from the request so a cancelled caller still cleans up.
func (s *service) discard(ctx context.Context, company *companydomain.Company, cause error) {
	if _, err := s.companies.Delete(context.WithoutCancel(ctx), company.ID); err != nil {
		s.log.Error("failed to discard trial company",
			zap.String("company_id", company.ID.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}
