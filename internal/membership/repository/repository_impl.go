package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/membership/domain"
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

func (r *repository) ListUsersByCompany(ctx context.Context, companyID snowflake.ID) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC, id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) ListInvitationsByCompany(ctx context.Context, companyID snowflake.ID) ([]domain.Invitation, error) {
	var invitations []domain.Invitation
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at ASC, id ASC").
		Find(&invitations).Error
	if err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *repository) InsertUser(ctx context.Context, user *domain.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) InsertInvitation(ctx context.Context, invitation *domain.Invitation) error {
	return r.db.WithContext(ctx).Create(invitation).Error
}

func (r *repository) FindUserByID(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, notFound(err, domain.ErrUserNotFound)
	}
	return &user, nil
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("email = ?", domain.NormalizeEmail(email)).Take(&user).Error
	if err != nil {
		return nil, notFound(err, domain.ErrUserNotFound)
	}
	return &user, nil
}

func (r *repository) FindInvitationByID(ctx context.Context, companyID, id snowflake.ID) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Take(&invitation).Error
	if err != nil {
		return nil, notFound(err, domain.ErrInvitationNotFound)
	}
	return &invitation, nil
}

func (r *repository) FindInvitationByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&invitation).Error; err != nil {
		return nil, notFound(err, domain.ErrInvitationNotFound)
	}
	return &invitation, nil
}

func (r *repository) FindLiveInvitation(ctx context.Context, companyID snowflake.ID, email string, now time.Time) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND email = ? AND status = ? AND expires_at > ?",
			companyID, domain.NormalizeEmail(email), domain.InvitationPending, now).
		Take(&invitation).Error
	if err != nil {
		return nil, notFound(err, domain.ErrInvitationNotFound)
	}
	return &invitation, nil
}

func (r *repository) UpdateUserCompany(ctx context.Context, userID snowflake.ID, companyID snowflake.ID, role domain.Role) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"company_id": companyID,
			"role":       role,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateUserRole(ctx context.Context, userID snowflake.ID, role domain.Role) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"role":       role,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) MarkInvitationAccepted(ctx context.Context, id snowflake.ID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      domain.InvitationAccepted,
			"accepted_at": at,
		}).Error
}

func (r *repository) ExpireInvitations(ctx context.Context, companyID snowflake.ID, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("company_id = ? AND status = ? AND expires_at <= ?", companyID, domain.InvitationPending, now).
		Update("status", domain.InvitationExpired)
	return res.RowsAffected, res.Error
}

func (r *repository) ExpireStaleInvitations(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Invitation{}).
		Where("status = ? AND expires_at <= ?", domain.InvitationPending, now).
		Update("status", domain.InvitationExpired)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteInvitation(ctx context.Context, companyID, id snowflake.ID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		Delete(&domain.Invitation{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteUser(ctx context.Context, companyID, userID snowflake.ID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", userID, companyID).
		Delete(&domain.User{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteUserSessions(ctx context.Context, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(`DELETE FROM sessions WHERE user_id = ?`, userID).Error
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
