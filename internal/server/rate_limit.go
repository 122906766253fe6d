package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/plantops/internal/observability/logger"
	"go.uber.org/zap"
)

// InvitationRateLimit spends one token from the company's invitation bucket.
// Without redis every request passes.
func (s *Server) InvitationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.inviteLimits.Enabled() {
			c.Next()
			return
		}

		companyID, err := s.companyScope(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		res := s.inviteLimits.AllowCompany(ctx, companyID)
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if res.Allowed {
			c.Next()
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		logger.FromContext(ctx).Warn("invitation rate limit exceeded", zap.String("endpoint", endpoint))
		s.obsMetrics.RecordRateLimitDenied(ctx, endpoint)

		retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
