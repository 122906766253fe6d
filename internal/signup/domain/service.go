package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
)

type Service interface {
	// TrialSignup creates a demo company, its first admin and a session.
	TrialSignup(ctx context.Context, req TrialRequest) (*Result, error)
}

type TrialRequest struct {
	CompanyName string `json:"company_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	UserAgent   string `json:"-"`
	IPAddress   string `json:"-"`
}

type Result struct {
	Company   *companydomain.Company
	User      *membershipdomain.User
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}

var ErrInvalidRequest = errors.New("invalid_signup_request")
