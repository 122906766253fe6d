package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
)

type createInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type acceptInvitationRequest struct {
	Token       string `json:"token"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type acceptInvitationResponse struct {
	User      *membershipdomain.User `json:"user"`
	ExpiresAt time.Time              `json:"expires_at"`
}

func (s *Server) CreateInvitation(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.seats.CreateInvitation(c.Request.Context(), seatservice.CreateInvitationRequest{
		CompanyID:       companyID,
		Email:           req.Email,
		Role:            membershipdomain.Role(strings.TrimSpace(req.Role)),
		Actor:           seatActor(state),
		BypassSeatCheck: state.IsPlatformAdmin(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result.Invitation})
}

func (s *Server) ListInvitations(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitations, err := s.membership.ListInvitations(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invitations})
}

func (s *Server) CancelInvitation(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invitationID, err := parseSnowflakeID(c.Param("invitationId"))
	if err != nil {
		AbortWithError(c, membershipdomain.ErrInvitationNotFound)
		return
	}

	if err := s.membership.CancelInvitation(c.Request.Context(), companyID, invitationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AcceptInvitation turns the invitation into a user and signs them in.
func (s *Server) AcceptInvitation(c *gin.Context) {
	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, newValidationError("token", "required", "token is required"))
		return
	}

	ctx := c.Request.Context()
	user, err := s.seats.AcceptInvitation(ctx, seatservice.AcceptInvitationRequest{
		Token:       strings.TrimSpace(req.Token),
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.authsvc.IssueSession(ctx, user.ID, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.sessions.Set(c, result.RawToken, result.ExpiresAt)

	c.JSON(http.StatusCreated, acceptInvitationResponse{User: user, ExpiresAt: result.ExpiresAt})
}
