package auth

import (
	"errors"
	"fmt"
	"net/http"

	oauth2errors "github.com/go-oauth2/oauth2/v4/errors"
)

var (
	// ErrClientNotFound is returned by a ClientStore when no client has the given id.
	ErrClientNotFound = errors.New("client not found")
	// ErrCodeNotFound is returned when an authorization code is unknown, used or expired.
	ErrCodeNotFound = errors.New("authorization code not found")
)

// Error is an OAuth2 protocol error. Code is one of the go-oauth2 error
// sentinels and doubles as the RFC 6749 "error" value.
type Error struct {
	Code        error
	Description string

	// RedirectSafe is set once the redirect URI has been validated for the
	// client, so the authorize endpoint may report the error by redirect.
	RedirectSafe bool

	cause error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code.Error()
	}
	return e.Code.Error() + ": " + e.Description
}

// Unwrap exposes the sentinel so errors.Is(err, oauth2errors.ErrInvalidGrant) works.
func (e *Error) Unwrap() error {
	return e.Code
}

// Cause returns the internal error behind a server_error, if any. It is for
// logging only and must never be rendered to the caller.
func (e *Error) Cause() error {
	return e.cause
}

// Identifier returns the wire "error" value.
func (e *Error) Identifier() string {
	return e.Code.Error()
}

// StatusCode maps the error to its HTTP status.
func (e *Error) StatusCode() int {
	switch e.Code {
	case oauth2errors.ErrInvalidClient:
		return http.StatusUnauthorized
	case oauth2errors.ErrAccessDenied:
		return http.StatusForbidden
	case oauth2errors.ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func newError(code error, format string, args ...any) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...any) *Error {
	return newError(oauth2errors.ErrInvalidRequest, format, args...)
}

func InvalidClient(format string, args ...any) *Error {
	return newError(oauth2errors.ErrInvalidClient, format, args...)
}

func InvalidGrant(format string, args ...any) *Error {
	return newError(oauth2errors.ErrInvalidGrant, format, args...)
}

func UnauthorizedClient(format string, args ...any) *Error {
	return newError(oauth2errors.ErrUnauthorizedClient, format, args...)
}

func UnsupportedGrantType(format string, args ...any) *Error {
	return newError(oauth2errors.ErrUnsupportedGrantType, format, args...)
}

func UnsupportedResponseType(format string, args ...any) *Error {
	return newError(oauth2errors.ErrUnsupportedResponseType, format, args...)
}

func InvalidScope(format string, args ...any) *Error {
	return newError(oauth2errors.ErrInvalidScope, format, args...)
}

func AccessDenied(format string, args ...any) *Error {
	return newError(oauth2errors.ErrAccessDenied, format, args...)
}

// ServerError wraps an unexpected failure. The description stays generic.
func ServerError(cause error) *Error {
	return &Error{
		Code:        oauth2errors.ErrServerError,
		Description: "The authorization server encountered an unexpected condition",
		cause:       cause,
	}
}

// AsError converts err into the OAuth2 taxonomy. Anything that is not
// already an *Error becomes a server_error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ServerError(err)
}
