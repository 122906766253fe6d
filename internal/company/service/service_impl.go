package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	"github.com/smallbiznis/plantops/internal/clock"
	"github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/internal/config"
	"github.com/smallbiznis/plantops/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Audit auditdomain.Service
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	audit auditdomain.Service
	clock clock.Clock
	trial time.Duration
	plan  domain.DeletionPlan
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("company.service"),
		genID: p.GenID,
		repo:  p.Repo,
		audit: p.Audit,
		clock: p.Clock,
		trial: p.Cfg.Trial.Duration,
		plan:  domain.DefaultDeletionPlan(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCompanyRequest) (*domain.Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.PurchasedManagerSeats < 0 || req.PurchasedTechSeats < 0 {
		return nil, domain.ErrInvalidSeats
	}
	pkg := req.PackageType
	if pkg == "" {
		pkg = domain.PackageFullAccess
	}
	if !pkg.Valid() {
		return nil, domain.ErrInvalidPackageType
	}

	now := s.clock.Now()
	company := &domain.Company{
		ID:                    s.genID.Generate(),
		Name:                  name,
		PurchasedManagerSeats: req.PurchasedManagerSeats,
		PurchasedTechSeats:    req.PurchasedTechSeats,
		PackageType:           pkg,
		OnboardingStage:       domain.StageCompanyCreated,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if pkg == domain.PackageDemo {
		company.DemoExpiresAt = s.demoExpiry(now, req.DemoExpiresAt)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		base := slug.Make(name)
		if base == "" {
			base = "company"
		}
		taken, err := repo.SlugExists(ctx, base)
		if err != nil {
			return err
		}
		company.Slug = base
		if taken {
			company.Slug = base + "-" + company.ID.Base36()
		}
		return repo.Insert(ctx, company)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, company.ID, "company.created", map[string]any{
		"package_type": string(company.PackageType),
	})
	return company, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Company, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrCompanyNotFound
	}
	return s.repo.FindByStripeCustomerID(ctx, customerID)
}

// UpdatePurchasedSeats replaces both ceilings. Shrinking below current usage is
// allowed; nobody is evicted and availability clamps at zero.
func (s *Service) UpdatePurchasedSeats(ctx context.Context, id snowflake.ID, manager, tech int) (*domain.Company, error) {
	if manager < 0 || tech < 0 {
		return nil, domain.ErrInvalidSeats
	}
	company, err := s.mutate(ctx, id, func(current *domain.Company) (map[string]any, error) {
		return map[string]any{
			"purchased_manager_seats": manager,
			"purchased_tech_seats":    tech,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, id, "seat.purchased_updated", map[string]any{
		"manager": manager,
		"tech":    tech,
	})
	return company, nil
}

func (s *Service) OverrideLicense(ctx context.Context, id snowflake.ID, req domain.LicenseOverride) (*domain.Company, error) {
	if req.PurchasedManagerSeats < 0 || req.PurchasedTechSeats < 0 {
		return nil, domain.ErrInvalidSeats
	}
	if req.PackageType != nil && !req.PackageType.Valid() {
		return nil, domain.ErrInvalidPackageType
	}

	company, err := s.mutate(ctx, id, func(current *domain.Company) (map[string]any, error) {
		fields := map[string]any{
			"purchased_manager_seats": req.PurchasedManagerSeats,
			"purchased_tech_seats":    req.PurchasedTechSeats,
		}
		pkg := current.PackageType
		if req.PackageType != nil {
			pkg = *req.PackageType
			fields["package_type"] = pkg
		}
		switch {
		case req.DemoExpiresAt != nil:
			fields["demo_expires_at"] = req.DemoExpiresAt.UTC()
		case pkg == domain.PackageDemo && current.DemoExpiresAt == nil:
			fields["demo_expires_at"] = *s.demoExpiry(s.clock.Now(), nil)
		}
		return fields, nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, id, "license.override", map[string]any{
		"manager":      req.PurchasedManagerSeats,
		"tech":         req.PurchasedTechSeats,
		"package_type": string(company.PackageType),
	})
	return company, nil
}

func (s *Service) UpdateSubscription(ctx context.Context, id snowflake.ID, req domain.SubscriptionUpdate) (*domain.Company, error) {
	return s.mutate(ctx, id, func(current *domain.Company) (map[string]any, error) {
		fields := map[string]any{}
		if status := strings.TrimSpace(req.Status); status != "" {
			fields["subscription_status"] = status
		}
		if req.StripeCustomerID != nil {
			fields["stripe_customer_id"] = strings.TrimSpace(*req.StripeCustomerID)
		}
		if req.StripeSubscriptionID != nil {
			fields["stripe_subscription_id"] = strings.TrimSpace(*req.StripeSubscriptionID)
		}
		return fields, nil
	})
}

// AdvanceOnboarding only moves forward. A stage at or below the current one
// returns the company unchanged.
func (s *Service) AdvanceOnboarding(ctx context.Context, id snowflake.ID, stage domain.OnboardingStage) (*domain.Company, error) {
	if !stage.Valid() {
		return nil, domain.ErrInvalidOnboardingStage
	}
	return s.mutate(ctx, id, func(current *domain.Company) (map[string]any, error) {
		if stage.Rank() <= current.OnboardingStage.Rank() {
			return nil, nil
		}
		return map[string]any{"onboarding_stage": stage}, nil
	})
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) (*domain.DeletionReport, error) {
	report := &domain.DeletionReport{
		CompanyID: id.String(),
		Deleted:   make(map[string]int64, len(s.plan.Steps)),
		Released:  make(map[string]int64),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByIDForUpdate(ctx, id); err != nil {
			return err
		}
		if err := rls.WithCompany(tx, id.Int64()); err != nil {
			return err
		}
		for _, step := range s.plan.Steps {
			n, err := repo.ExecuteStep(ctx, step, id)
			if err != nil {
				return err
			}
			if step.Releases() {
				report.Released[step.Table] += n
				continue
			}
			report.Deleted[step.Table] += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("company deleted", zap.String("company_id", id.String()), zap.Any("deleted", report.Deleted), zap.Any("released", report.Released))
	target := id.String()
	if err := s.audit.Record(ctx, auditdomain.Entry{
		Action:         "company.deleted",
		TargetType:     "company",
		TargetID:       &target,
		Metadata:       map[string]any{"deleted": report.Deleted, "released": report.Released},
		PlatformScoped: true,
	}); err != nil {
		s.log.Warn("audit company deletion", zap.Error(err))
	}
	return report, nil
}

// mutate locks the company row, applies the fields produced by fn and returns
// the re-read row. A nil field map leaves the row untouched.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, fn func(current *domain.Company) (map[string]any, error)) (*domain.Company, error) {
	var out *domain.Company
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		fields, err := fn(current)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			out = current
			return nil
		}
		fields["updated_at"] = s.clock.Now()
		if err := repo.Update(ctx, id, fields); err != nil {
			return err
		}
		out, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) demoExpiry(now time.Time, requested *time.Time) *time.Time {
	if requested != nil {
		t := requested.UTC()
		return &t
	}
	t := now.Add(s.trial)
	return &t
}

func (s *Service) record(ctx context.Context, id snowflake.ID, action string, metadata map[string]any) {
	target := id.String()
	if err := s.audit.Record(ctx, auditdomain.Entry{
		CompanyID:  &id,
		Action:     action,
		TargetType: "company",
		TargetID:   &target,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit company change", zap.String("action", action), zap.Error(err))
	}
}
