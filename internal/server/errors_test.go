package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/smallbiznis/plantops/internal/access"
	"github.com/smallbiznis/plantops/internal/auth/credential"
	authdomain "github.com/smallbiznis/plantops/internal/auth/domain"
	"github.com/smallbiznis/plantops/internal/billing"
	companydomain "github.com/smallbiznis/plantops/internal/company/domain"
	membershipdomain "github.com/smallbiznis/plantops/internal/membership/domain"
	"github.com/smallbiznis/plantops/internal/seat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"expired session", authdomain.ErrSessionExpired, http.StatusUnauthorized, "unauthorized"},
		{"simulation by customer", access.ErrUnauthorized, http.StatusForbidden, "platform_admin_required"},
		{"forbidden", ErrForbidden, http.StatusForbidden, "forbidden"},
		{"duplicate invitation", seat.ErrDuplicateInvitation, http.StatusConflict, "duplicate_invitation"},
		{"lock retry exhausted", seat.ErrConcurrentUpdateConflict, http.StatusConflict, "concurrent_update_conflict"},
		{"user exists", membershipdomain.ErrUserExists, http.StatusConflict, membershipdomain.ErrUserExists.Error()},
		{"invitation used", membershipdomain.ErrInvitationUsed, http.StatusConflict, membershipdomain.ErrInvitationUsed.Error()},
		{"invitation expired", membershipdomain.ErrInvitationExpired, http.StatusGone, "invitation_expired"},
		{"company missing", fmt.Errorf("load: %w", companydomain.ErrCompanyNotFound), http.StatusNotFound, "company_not_found"},
		{"invitation missing", membershipdomain.ErrInvitationNotFound, http.StatusNotFound, membershipdomain.ErrInvitationNotFound.Error()},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"webhook off", billing.ErrWebhookNotConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}

func TestMapErrorValidationFields(t *testing.T) {
	status, payload := mapError(fmt.Errorf("accept: %w", credential.ErrWeakPassword))
	require.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "password", payload.Errors[0].Field)
	assert.Equal(t, "weak_password", payload.Errors[0].Code)

	_, payload = mapError(companydomain.ErrInvalidOnboardingStage)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "stage", payload.Errors[0].Field)
}

func TestMapErrorSeatsExhaustedCarriesBreakdown(t *testing.T) {
	exhausted := &seat.SeatsExhaustedError{
		Class:     seat.ClassTech,
		Requested: 1,
		Breakdown: seat.Breakdown{Purchased: seat.Counts{Tech: 2}, Used: seat.Counts{Tech: 2}},
	}

	status, payload := mapError(fmt.Errorf("invite: %w", exhausted))
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "seats_exhausted", payload.Type)
	details, ok := payload.Details.(seatsExhaustedDetails)
	require.True(t, ok)
	assert.Equal(t, 2, details.Breakdown.Purchased.Tech)
}

func TestClassifyErrorForLogUnwraps(t *testing.T) {
	typ, code := classifyErrorForLog(fmt.Errorf("handler: %w", seat.ErrDuplicateInvitation))
	assert.Equal(t, "duplicate_invitation", typ)
	assert.Equal(t, "duplicate_invitation", code)
}
