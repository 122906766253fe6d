package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/plantops/internal/access"
	auditdomain "github.com/smallbiznis/plantops/internal/audit/domain"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type switchRoleRequest struct {
	Role string `json:"role"`
}

type switchPackageRequest struct {
	// PackageType nil or empty clears every simulation on the session.
	PackageType *string `json:"package_type"`
}

type sessionResponse struct {
	User      *membershipdomain.User `json:"user"`
	ExpiresAt time.Time              `json:"expires_at"`
}

type accessResponse struct {
	State            *access.State             `json:"state"`
	EffectiveRole    membershipdomain.Role     `json:"effective_role"`
	EffectivePackage companydomain.PackageType `json:"effective_package,omitempty"`
	Simulating       bool                      `json:"simulating"`
	Surfaces         []access.Surface          `json:"surfaces"`
}

type meResponse struct {
	User   *membershipdomain.User `json:"user"`
	Access accessResponse         `json:"access"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := membershipdomain.NormalizeEmail(req.Email)
	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.recordAudit(c, auditdomain.Entry{
			ActorType:      string(auditdomain.ActorTypeUser),
			Action:         "user.login_failed",
			TargetType:     "user",
			Metadata:       map[string]any{"email": email},
			PlatformScoped: true,
		})
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)

	userID := result.User.ID.String()
	s.recordAudit(c, auditdomain.Entry{
		CompanyID:  result.User.CompanyID,
		ActorType:  string(auditdomain.ActorTypeUser),
		ActorID:    &userID,
		Action:     "user.login",
		TargetType: "user",
		TargetID:   &userID,
	})

	c.JSON(http.StatusOK, sessionResponse{User: result.User, ExpiresAt: result.ExpiresAt})
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

// Me reports the caller and what they can currently reach, simulation
// included.
func (s *Server) Me(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}

	user, err := s.users.FindUserByID(c.Request.Context(), state.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, meResponse{User: user, Access: s.accessView(state)})
}

func (s *Server) SwitchRole(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}

	var req switchRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	next, err := s.simulator.SwitchRole(c.Request.Context(), state.SessionID, *state, membershipdomain.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.accessView(next))
}

func (s *Server) SwitchPackage(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}

	var req switchPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var pkg *companydomain.PackageType
	if req.PackageType != nil && strings.TrimSpace(*req.PackageType) != "" {
		p := companydomain.PackageType(strings.TrimSpace(*req.PackageType))
		pkg = &p
	}

	next, err := s.simulator.SwitchPackage(c.Request.Context(), state.SessionID, *state, pkg)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.accessView(next))
}

func (s *Server) accessView(state *access.State) accessResponse {
	view := accessResponse{
		State:            state,
		EffectiveRole:    state.Role,
		EffectivePackage: state.PackageType,
		Simulating:       state.Simulating(),
		Surfaces:         s.filter.Allowed(*state, s.clock.Now()),
	}
	if state.IsPlatformAdmin() {
		switch {
		case state.SimulatedPackage != nil:
			view.EffectivePackage = *state.SimulatedPackage
			view.EffectiveRole = membershipdomain.RoleAdmin
		case state.SimulatedRole != nil:
			view.EffectiveRole = *state.SimulatedRole
		}
	}
	return view
}

func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(c.Request.Context(), entry); err != nil {
		s.log.Warn("audit record failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
