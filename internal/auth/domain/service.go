package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// IssueSession opens a session for an already verified user, e.g. right
	// after signup or invitation acceptance.
	IssueSession(ctx context.Context, userID snowflake.ID, userAgent, ipAddress string) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *membershipdomain.User
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}
