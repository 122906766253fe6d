package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/plantops/internal/config"
	"go.uber.org/zap"
)

const keyInvitationCompany = "invitations:create:company:%s"

// InvitationLimiter throttles invitation creation per company. A nil limiter
// allows everything.
type InvitationLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewInvitationLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *InvitationLimiter {
	if bucket == nil || cfg.Invitation.RatePerMinute <= 0 || cfg.Invitation.Burst <= 0 {
		return nil
	}
	return &InvitationLimiter{
		log:    log.Named("ratelimit.invitation"),
		bucket: bucket,
		rate:   cfg.Invitation.RatePerMinute / 60,
		burst:  cfg.Invitation.Burst,
	}
}

func (l *InvitationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowCompany takes one token for the company. Redis failures fail open so
// an outage never blocks invitations; the seat check still applies.
func (l *InvitationLimiter) AllowCompany(ctx context.Context, companyID snowflake.ID) *Result {
	if !l.Enabled() {
		return &Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyInvitationCompany, companyID.String()), l.rate, l.burst)
	if err != nil {
		l.log.Warn("invitation rate limit check failed", zap.String("company_id", companyID.String()), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}
	}
	return res
}
