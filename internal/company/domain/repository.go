package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, company *Company) error
	FindByID(ctx context.Context, id snowflake.ID) (*Company, error)
	// FindByIDForUpdate locks the company row for the rest of the
	// transaction on dialects with row locking.
	FindByIDForUpdate(ctx context.Context, id snowflake.ID) (*Company, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Company, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, id snowflake.ID, fields map[string]any) error
	ExecuteStep(ctx context.Context, step DeletionStep, id snowflake.ID) (int64, error)
}
