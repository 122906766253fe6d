package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/company/domain"
	"github.com/smallbiznis/plantops/pkg/db"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, company *domain.Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	return r.first(db.ForUpdate(r.db.WithContext(ctx)).Where("id = ?", id))
}

func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*domain.Company, error) {
	return r.first(r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID))
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Company{}).Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) Update(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&domain.Company{}).Where("id = ?", id).Updates(fields).Error
}

func (r *repository) ExecuteStep(ctx context.Context, step domain.DeletionStep, id snowflake.ID) (int64, error) {
	args := make([]any, strings.Count(step.Where, "?"))
	for i := range args {
		args[i] = id
	}

	verb, stmt := "delete", fmt.Sprintf("DELETE FROM %s WHERE %s", step.Table, step.Where)
	if step.Releases() {
		verb, stmt = "release", fmt.Sprintf("UPDATE %s SET %s WHERE %s", step.Table, step.Set, step.Where)
	}
	res := r.db.WithContext(ctx).Exec(stmt, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("%s %s: %w", verb, step.Table, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) first(q *gorm.DB) (*domain.Company, error) {
	var company domain.Company
	if err := q.Take(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, err
	}
	return &company, nil
}
