package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/plantops/internal/access"
	"github.com/smallbiznis/plantops/internal/auth/credential"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	"github.com/smallbiznis/plantops/internal/billing"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/observability/errorreport"
	"github.com/smallbiznis/plantops/internal/seat"
	signupdomain "github.com/smallbiznis/plantops/internal/signup/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Details any               `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// seatsExhaustedDetails lets clients render "0 of N available".
type seatsExhaustedDetails struct {
	Class     seat.Class     `json:"class"`
	Requested int            `json:"requested"`
	Breakdown seat.Breakdown `json:"breakdown"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrCompanyRequired    = errors.New("company_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware(reporter *errorreport.Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			reporter.CaptureRequestError(c, lastErr.Err)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var exhausted *seat.SeatsExhaustedError
	if errors.As(err, &exhausted) {
		return http.StatusConflict, errorPayload{
			Type:    "seats_exhausted",
			Message: "no " + string(exhausted.Class) + " seats available",
			Details: seatsExhaustedDetails{
				Class:     exhausted.Class,
				Requested: exhausted.Requested,
				Breakdown: exhausted.Breakdown,
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, access.ErrUnauthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "platform_admin_required",
			Message: "platform admin required",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, seat.ErrSeatsExhausted):
		return http.StatusConflict, errorPayload{
			Type:    "seats_exhausted",
			Message: "no seats available",
		}
	case errors.Is(err, seat.ErrDuplicateInvitation):
		return http.StatusConflict, errorPayload{
			Type:    "duplicate_invitation",
			Message: "a pending invitation already exists for this email",
		}
	case errors.Is(err, seat.ErrConcurrentUpdateConflict):
		return http.StatusConflict, errorPayload{
			Type:    "concurrent_update_conflict",
			Message: "concurrent update, retry the request",
		}
	case errors.Is(err, membershipdomain.ErrUserExists),
		errors.Is(err, membershipdomain.ErrInvitationUsed),
		errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    errorType(err, ErrConflict, membershipdomain.ErrUserExists, membershipdomain.ErrInvitationUsed),
			Message: "conflict",
		}
	case errors.Is(err, membershipdomain.ErrInvitationExpired):
		return http.StatusGone, errorPayload{
			Type:    "invitation_expired",
			Message: "invitation expired",
		}
	case errors.Is(err, companydomain.ErrCompanyNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "company_not_found",
			Message: "company not found",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    errorType(err, ErrNotFound, membershipdomain.ErrUserNotFound, membershipdomain.ErrInvitationNotFound),
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, billing.ErrWebhookNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// errorType returns the first candidate err matches.
func errorType(err error, candidates ...error) string {
	for _, candidate := range candidates {
		if errors.Is(err, candidate) {
			return candidate.Error()
		}
	}
	return candidates[0].Error()
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrCompanyRequired),
		errors.Is(err, signupdomain.ErrInvalidRequest),
		errors.Is(err, credential.ErrWeakPassword),
		errors.Is(err, membershipdomain.ErrInvalidEmail),
		errors.Is(err, membershipdomain.ErrInvalidRole),
		errors.Is(err, companydomain.ErrInvalidName),
		errors.Is(err, companydomain.ErrInvalidSeats),
		errors.Is(err, companydomain.ErrInvalidPackageType),
		errors.Is(err, companydomain.ErrInvalidOnboardingStage),
		errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, billing.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, membershipdomain.ErrUserNotFound),
		errors.Is(err, membershipdomain.ErrInvitationNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, signupdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, billing.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, billing.ErrInvalidPayload):
		return "invalid_payload"
	default:
		return errorCode(err)
	}
}

// errorCode strips wrapping context, keeping the sentinel text.
func errorCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request", "invalid_payload":
		return "request"
	case "invalid_signature":
		return "Stripe-Signature"
	case "weak_password":
		return "password"
	case "company_required":
		return "company_id"
	case "invalid_package_type":
		return "package_type"
	case "invalid_onboarding_stage":
		return "stage"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "weak_password":
		return "password must be at least 8 characters"
	case "company_required":
		return "company is required"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, errorCode(err)
}
