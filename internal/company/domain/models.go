// Package domain contains the tenant model and its licensing fields.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PackageType string

const (
	PackageFullAccess      PackageType = "full_access"
	PackageOperations      PackageType = "operations"
	PackageTroubleshooting PackageType = "troubleshooting"
	PackageDemo            PackageType = "demo"
)

func (p PackageType) Valid() bool {
	switch p {
	case PackageFullAccess, PackageOperations, PackageTroubleshooting, PackageDemo:
		return true
	}
	return false
}

type OnboardingStage string

const (
	StageNotStarted      OnboardingStage = "not_started"
	StageCompanyCreated  OnboardingStage = "company_created"
	StagePlanSelected    OnboardingStage = "plan_selected"
	StagePaymentComplete OnboardingStage = "payment_complete"
	StageCompleted       OnboardingStage = "completed"
)

var stageRank = map[OnboardingStage]int{
	StageNotStarted:      0,
	StageCompanyCreated:  1,
	StagePlanSelected:    2,
	StagePaymentComplete: 3,
	StageCompleted:       4,
}

// Rank orders onboarding stages; unknown stages rank -1.
func (s OnboardingStage) Rank() int {
	if r, ok := stageRank[s]; ok {
		return r
	}
	return -1
}

func (s OnboardingStage) Valid() bool { return s.Rank() >= 0 }

// Company represents a tenant and its purchased seat ceilings.
type Company struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name                  string          `gorm:"type:text;not null" json:"name"`
	Slug                  string          `gorm:"type:text;not null;uniqueIndex:ux_companies_slug" json:"slug"`
	PurchasedManagerSeats int             `gorm:"column:purchased_manager_seats;not null;default:0" json:"purchased_manager_seats"`
	PurchasedTechSeats    int             `gorm:"column:purchased_tech_seats;not null;default:0" json:"purchased_tech_seats"`
	PackageType           PackageType     `gorm:"column:package_type;type:text;not null" json:"package_type"`
	DemoExpiresAt         *time.Time      `gorm:"column:demo_expires_at" json:"demo_expires_at,omitempty"`
	SubscriptionStatus    string          `gorm:"column:subscription_status;type:text;not null;default:''" json:"subscription_status"`
	OnboardingStage       OnboardingStage `gorm:"column:onboarding_stage;type:text;not null" json:"onboarding_stage"`
	StripeCustomerID      *string         `gorm:"column:stripe_customer_id;type:text;index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string         `gorm:"column:stripe_subscription_id;type:text" json:"stripe_subscription_id,omitempty"`
	CreatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Company) TableName() string { return "companies" }

// DemoExpired reports whether a demo package has run past its expiry.
func (c Company) DemoExpired(now time.Time) bool {
	if c.PackageType != PackageDemo || c.DemoExpiresAt == nil {
		return false
	}
	return !now.Before(*c.DemoExpiresAt)
}
