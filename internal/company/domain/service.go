package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateCompanyRequest) (*Company, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Company, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*Company, error)
	UpdatePurchasedSeats(ctx context.Context, id snowflake.ID, manager, tech int) (*Company, error)
	OverrideLicense(ctx context.Context, id snowflake.ID, req LicenseOverride) (*Company, error)
	UpdateSubscription(ctx context.Context, id snowflake.ID, req SubscriptionUpdate) (*Company, error)
	AdvanceOnboarding(ctx context.Context, id snowflake.ID, stage OnboardingStage) (*Company, error)
	Delete(ctx context.Context, id snowflake.ID) (*DeletionReport, error)
}

type CreateCompanyRequest struct {
	Name                  string
	PackageType           PackageType
	PurchasedManagerSeats int
	PurchasedTechSeats    int
	// DemoExpiresAt is derived from the configured trial length when a demo
	// company is created without one.
	DemoExpiresAt *time.Time
}

type LicenseOverride struct {
	PurchasedManagerSeats int
	PurchasedTechSeats    int
	PackageType           *PackageType
	DemoExpiresAt         *time.Time
}

type SubscriptionUpdate struct {
	Status               string
	StripeCustomerID     *string
	StripeSubscriptionID *string
}

var (
	ErrCompanyNotFound        = errors.New("company_not_found")
	ErrInvalidName            = errors.New("invalid_name")
	ErrInvalidSeats           = errors.New("invalid_seats")
	ErrInvalidPackageType     = errors.New("invalid_package_type")
	ErrInvalidOnboardingStage = errors.New("invalid_onboarding_stage")
)
