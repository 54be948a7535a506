package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	oauth2errors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_StatusCode(t *testing.T) {
	testCases := []struct {
		err        *Error
		identifier string
		status     int
	}{
		{InvalidRequest("x"), "invalid_request", http.StatusBadRequest},
		{InvalidClient("x"), "invalid_client", http.StatusUnauthorized},
		{InvalidGrant("x"), "invalid_grant", http.StatusBadRequest},
		{UnauthorizedClient("x"), "unauthorized_client", http.StatusBadRequest},
		{UnsupportedGrantType("x"), "unsupported_grant_type", http.StatusBadRequest},
		{UnsupportedResponseType("x"), "unsupported_response_type", http.StatusBadRequest},
		{InvalidScope("x"), "invalid_scope", http.StatusBadRequest},
		{AccessDenied("x"), "access_denied", http.StatusForbidden},
		{ServerError(errors.New("db down")), "server_error", http.StatusInternalServerError},
	}

	for _, tt := range testCases {
		t.Run(tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.identifier, tt.err.Identifier())
			assert.Equal(t, tt.status, tt.err.StatusCode())
		})
	}
}

func TestError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("exchange: %w", InvalidGrant("code %s is gone", "abc"))

	assert.True(t, errors.Is(err, oauth2errors.ErrInvalidGrant))
	assert.False(t, errors.Is(err, oauth2errors.ErrInvalidClient))
	assert.Equal(t, "exchange: invalid_grant: code abc is gone", err.Error())
}

func TestServerError_HidesCause(t *testing.T) {
	cause := errors.New("connection refused to 10.0.0.5")
	err := ServerError(cause)

	assert.NotContains(t, err.Description, "10.0.0.5")
	assert.Equal(t, cause, err.Cause())
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	original := InvalidScope("admin")
	assert.Same(t, original, AsError(fmt.Errorf("wrapped: %w", original)))

	converted := AsError(errors.New("boom"))
	require.NotNil(t, converted)
	assert.Equal(t, "server_error", converted.Identifier())
	assert.EqualError(t, converted.Cause(), "boom")
}
