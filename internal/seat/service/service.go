package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/seat"
)

// Service runs every operation that consumes a seat. Each call checks and
// writes inside one transaction holding the company row lock.
type Service interface {
	AddUser(ctx context.Context, req AddUserRequest) (*membershipdomain.User, error)
	CreateInvitation(ctx context.Context, req CreateInvitationRequest) (*InvitationResult, error)
	ChangeRole(ctx context.Context, req ChangeRoleRequest) (*membershipdomain.User, error)
	AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*membershipdomain.User, error)
	Breakdown(ctx context.Context, companyID snowflake.ID) (seat.Breakdown, error)
}

// Actor is the authenticated caller of a mutator.
type Actor struct {
	UserID       snowflake.ID
	PlatformRole membershipdomain.PlatformRole
}

type AddUserRequest struct {
	CompanyID snowflake.ID
	// UserID binds an existing user. When zero, Email identifies an existing
	// user or a new one is created.
	UserID      snowflake.ID
	Email       string
	DisplayName string
	Password    string
	Role        membershipdomain.Role

	Actor           Actor
	BypassSeatCheck bool
}

type CreateInvitationRequest struct {
	CompanyID snowflake.ID
	Email     string
	Role      membershipdomain.Role

	Actor           Actor
	BypassSeatCheck bool
}

type InvitationResult struct {
	Invitation membershipdomain.Invitation `json:"invitation"`
	RawToken   string                      `json:"-"`
}

type ChangeRoleRequest struct {
	CompanyID snowflake.ID
	UserID    snowflake.ID
	Role      membershipdomain.Role

	Actor           Actor
	BypassSeatCheck bool
}

type AcceptInvitationRequest struct {
	Token       string
	DisplayName string
	Password    string
}

// Notifier is told about committed invitations. Failures are logged and never
// undo the invitation.
type Notifier interface {
	InvitationCreated(ctx context.Context, invitation membershipdomain.Invitation, rawToken string) error
}
