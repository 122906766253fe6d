package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service holds the membership operations that never consume a seat.
// Seat-consuming mutations live in the seat service.
type Service interface {
	ListUsers(ctx context.Context, companyID snowflake.ID) ([]User, error)
	ListInvitations(ctx context.Context, companyID snowflake.ID) ([]Invitation, error)
	CancelInvitation(ctx context.Context, companyID, invitationID snowflake.ID) error
	RemoveUser(ctx context.Context, companyID, userID snowflake.ID) error
	SweepExpiredInvitations(ctx context.Context) (int64, error)
}

var (
	ErrUserNotFound       = errors.New("user_not_found")
	ErrUserExists         = errors.New("user_exists")
	ErrInvitationNotFound = errors.New("invitation_not_found")
	ErrInvitationExpired  = errors.New("invitation_expired")
	ErrInvitationUsed     = errors.New("invitation_already_accepted")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidRole        = errors.New("invalid_role")
)
