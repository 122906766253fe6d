package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListUsersByCompany(ctx context.Context, companyID snowflake.ID) ([]User, error)
	ListInvitationsByCompany(ctx context.Context, companyID snowflake.ID) ([]Invitation, error)

	InsertUser(ctx context.Context, user *User) error
	InsertInvitation(ctx context.Context, invitation *Invitation) error

	FindUserByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindInvitationByID(ctx context.Context, companyID, id snowflake.ID) (*Invitation, error)
	FindInvitationByTokenHash(ctx context.Context, tokenHash string) (*Invitation, error)
	// FindLiveInvitation returns the pending, unexpired invitation for email
	// in the company, if any.
	FindLiveInvitation(ctx context.Context, companyID snowflake.ID, email string, now time.Time) (*Invitation, error)

	UpdateUserCompany(ctx context.Context, userID snowflake.ID, companyID snowflake.ID, role Role) error
	UpdateUserRole(ctx context.Context, userID snowflake.ID, role Role) error
	MarkInvitationAccepted(ctx context.Context, id snowflake.ID, at time.Time) error
	ExpireInvitations(ctx context.Context, companyID snowflake.ID, now time.Time) (int64, error)
	ExpireStaleInvitations(ctx context.Context, now time.Time) (int64, error)

	DeleteInvitation(ctx context.Context, companyID, id snowflake.ID) (int64, error)
	DeleteUser(ctx context.Context, companyID, userID snowflake.ID) (int64, error)
	DeleteUserSessions(ctx context.Context, userID snowflake.ID) error
}
