package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	seatservice "github.com/smallbiznis/plantops/internal/seat/service"
)

type addUserRequest struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

type overrideLicenseRequest struct {
	PurchasedManagerSeats int        `json:"purchased_manager_seats"`
	PurchasedTechSeats    int        `json:"purchased_tech_seats"`
	PackageType           *string    `json:"package_type"`
	DemoExpiresAt         *time.Time `json:"demo_expires_at"`
}

type advanceOnboardingRequest struct {
	Stage string `json:"stage"`
}

// GetSeatBreakdown is always computed from live rows.
func (s *Server) GetSeatBreakdown(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.seats.Breakdown(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": breakdown})
}

func (s *Server) ListUsers(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	users, err := s.membership.ListUsers(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}

func (s *Server) AddUser(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	addReq := seatservice.AddUserRequest{
		CompanyID:       companyID,
		Email:           req.Email,
		DisplayName:     req.DisplayName,
		Password:        req.Password,
		Role:            membershipdomain.Role(strings.TrimSpace(req.Role)),
		Actor:           seatActor(state),
		BypassSeatCheck: state.IsPlatformAdmin(),
	}
	if strings.TrimSpace(req.UserID) != "" {
		userID, err := parseSnowflakeID(req.UserID)
		if err != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user id"))
			return
		}
		addReq.UserID = userID
	}

	user, err := s.seats.AddUser(c.Request.Context(), addReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": user})
}

func (s *Server) ChangeUserRole(c *gin.Context) {
	state, ok := stateFrom(c)
	if !ok {
		return
	}
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseSnowflakeID(c.Param("userId"))
	if err != nil {
		AbortWithError(c, membershipdomain.ErrUserNotFound)
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.seats.ChangeRole(c.Request.Context(), seatservice.ChangeRoleRequest{
		CompanyID:       companyID,
		UserID:          userID,
		Role:            membershipdomain.Role(strings.TrimSpace(req.Role)),
		Actor:           seatActor(state),
		BypassSeatCheck: state.IsPlatformAdmin(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": user})
}

func (s *Server) RemoveUser(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseSnowflakeID(c.Param("userId"))
	if err != nil {
		AbortWithError(c, membershipdomain.ErrUserNotFound)
		return
	}

	if err := s.membership.RemoveUser(c.Request.Context(), companyID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// OverrideLicense sets seat ceilings directly. It never checks usage.
func (s *Server) OverrideLicense(c *gin.Context) {
	companyID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, companydomain.ErrCompanyNotFound)
		return
	}

	var req overrideLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	override := companydomain.LicenseOverride{
		PurchasedManagerSeats: req.PurchasedManagerSeats,
		PurchasedTechSeats:    req.PurchasedTechSeats,
		DemoExpiresAt:         req.DemoExpiresAt,
	}
	if req.PackageType != nil {
		pkg := companydomain.PackageType(strings.TrimSpace(*req.PackageType))
		override.PackageType = &pkg
	}

	company, err := s.companySvc.OverrideLicense(c.Request.Context(), companyID, override)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": company})
}

func (s *Server) AdvanceOnboarding(c *gin.Context) {
	companyID, err := s.companyScope(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req advanceOnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	company, err := s.companySvc.AdvanceOnboarding(c.Request.Context(), companyID, companydomain.OnboardingStage(strings.TrimSpace(req.Stage)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": company})
}

func (s *Server) DeleteCompany(c *gin.Context) {
	companyID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, companydomain.ErrCompanyNotFound)
		return
	}

	report, err := s.companySvc.Delete(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
