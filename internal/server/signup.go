package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	signupdomain "github.com/smallbiznis/plantops/internal/signup/domain"
)

type SignupRequest struct {
	CompanyName string `json:"company_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type signupResponse struct {
	Company   *companydomain.Company `json:"company"`
	User      *membershipdomain.User `json:"user"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Signup starts a demo trial and signs the new admin in.
func (s *Server) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.signupsvc.TrialSignup(c.Request.Context(), signupdomain.TrialRequest{
		CompanyName: req.CompanyName,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		UserAgent:   c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusCreated, signupResponse{
		Company:   result.Company,
		User:      result.User,
		ExpiresAt: result.ExpiresAt,
	})
}
