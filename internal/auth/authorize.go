package auth

import (
	"context"
	"errors"

	"github.com/go-oauth2/oauth2/v4"
)

// AuthorizationRequestValidator checks an /authorize request. Checks run in
// a fixed order and the first failure is returned.
type AuthorizationRequestValidator struct {
	clients *ClientDirectory
	scopes  ScopeValidator
}

func NewAuthorizationRequestValidator(clients *ClientDirectory) *AuthorizationRequestValidator {
	return &AuthorizationRequestValidator{clients: clients}
}

func (v *AuthorizationRequestValidator) Validate(ctx context.Context, req AuthorizationRequest) (*AuthorizationOutcome, error) {
	client, err := v.clients.Lookup(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, InvalidClient("unknown client")
		}
		return nil, ServerError(err)
	}
	if !client.Enabled {
		return nil, InvalidClient("client is disabled")
	}

	if req.ResponseType != string(oauth2.Code) {
		return nil, UnsupportedResponseType("response_type must be %q", oauth2.Code)
	}

	if !v.clients.ValidateRedirectURI(client, req.RedirectURI) {
		return nil, InvalidRequest("redirect_uri is not registered for this client")
	}

	// From here on the redirect URI is trusted and errors may be redirected.
	if !v.clients.SupportsGrantType(client, oauth2.AuthorizationCode) {
		return nil, redirectable(UnauthorizedClient("client may not use the authorization_code grant"))
	}

	var method string
	if req.CodeChallenge != "" {
		method = req.CodeChallengeMethod
		if method == "" {
			method = string(oauth2.CodeChallengePlain)
		}
		if !v.clients.SupportsPKCEMethod(client, method) {
			return nil, redirectable(InvalidRequest("code_challenge_method %q is not supported for this client", method))
		}
	}

	scopes, err := v.scopes.Validate(client, req.Scopes)
	if err != nil {
		return nil, redirectable(AsError(err))
	}

	return &AuthorizationOutcome{
		Client:              client,
		ResponseType:        req.ResponseType,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	}, nil
}

func redirectable(err *Error) *Error {
	err.RedirectSafe = true
	return err
}
