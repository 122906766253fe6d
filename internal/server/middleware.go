package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/plantops/internal/access"
	obscontext "github.com/smallbiznis/plantops/internal/observability/context"
	"github.com/smallbiznis/plantops/internal/observability/logger"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
	"go.uber.org/zap"
)

const contextCompanyIDKey = "company_id"

// SessionRequired authenticates the session cookie (or bearer token) and
// places the resolved access state on the request context.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		session, err := s.authsvc.Authenticate(ctx, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		state, err := s.resolver.Resolve(ctx, session)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx = access.WithState(ctx, state)
		ctx = obscontext.WithActor(ctx, "user", state.UserID.String())
		if state.CompanyID != nil {
			ctx = obscontext.WithCompanyID(ctx, state.CompanyID.String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireSurface gates a route on the effective role and package of the
// caller, simulation included.
func (s *Server) RequireSurface(surface access.Surface) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := access.StateFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		decision := s.filter.Allow(*state, surface, s.clock.Now())
		if !decision.Allowed {
			logger.FromContext(c.Request.Context()).Debug("surface denied",
				zap.String("surface", string(surface)),
				zap.String("reason", decision.Reason),
			)
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequirePlatformAdmin checks the persisted platform role. Simulation never
// grants or removes it.
func (s *Server) RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := access.StateFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !state.IsPlatformAdmin() {
			AbortWithError(c, access.ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RequireCompany binds the :id path parameter. Customers may only address
// their own company.
func (s *Server) RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := access.StateFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		companyID, err := parseSnowflakeID(c.Param("id"))
		if err != nil {
			AbortWithError(c, ErrNotFound)
			return
		}
		if !state.IsPlatformAdmin() && (state.CompanyID == nil || *state.CompanyID != companyID) {
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Set(contextCompanyIDKey, companyID)
		c.Request = c.Request.WithContext(obscontext.WithCompanyID(c.Request.Context(), companyID.String()))
		c.Next()
	}
}

// companyScope picks the company a request acts on: the bound path id, the
// caller's own company, or for platform admins the company_id query.
func (s *Server) companyScope(c *gin.Context) (snowflake.ID, error) {
	if v, ok := c.Get(contextCompanyIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id, nil
		}
	}

	state, ok := access.StateFromContext(c.Request.Context())
	if !ok {
		return 0, ErrUnauthorized
	}
	if state.IsPlatformAdmin() {
		if raw := strings.TrimSpace(c.Query("company_id")); raw != "" {
			id, err := parseSnowflakeID(raw)
			if err != nil {
				return 0, newValidationError("company_id", "invalid_company_id", "invalid company id")
			}
			return id, nil
		}
	}
	if state.CompanyID == nil {
		return 0, ErrCompanyRequired
	}
	return *state.CompanyID, nil
}

func seatActor(state *access.State) seatservice.Actor {
	return seatservice.Actor{
		UserID:       state.UserID,
		PlatformRole: state.PlatformRole,
	}
}

func stateFrom(c *gin.Context) (*access.State, bool) {
	state, ok := access.StateFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return state, ok
}
