package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-oauth2/oauth2/v4"
)

// DefaultAccessTokenLifetime applies when a client has no lifetime of its own.
const DefaultAccessTokenLifetime = time.Hour

// ClientCredentials are the client_id/client_secret pair presented at /token.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	// FromBasicAuth is set when the pair came from the Authorization header.
	FromBasicAuth bool
}

// ExtractClientCredentials reads the credentials from the form body, falling
// back to HTTP Basic auth when the body carries no client_id.
func ExtractClientCredentials(form url.Values, authorization string) (ClientCredentials, error) {
	creds := ClientCredentials{
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
	}
	if creds.ClientID != "" || authorization == "" {
		return creds, nil
	}

	scheme, payload, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return creds, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return creds, InvalidRequest("malformed Basic authorization header")
	}
	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return creds, InvalidRequest("malformed Basic authorization header")
	}
	// RFC 6749 section 2.3.1: both parts are form-urlencoded.
	if unescaped, err := url.QueryUnescape(id); err == nil {
		id = unescaped
	}
	if unescaped, err := url.QueryUnescape(secret); err == nil {
		secret = unescaped
	}
	return ClientCredentials{ClientID: id, ClientSecret: secret, FromBasicAuth: true}, nil
}

// GrantDispatcher routes token requests to the handler for their grant type.
type GrantDispatcher struct {
	clients         *ClientDirectory
	codes           *AuthorizationCodeLedger
	issuer          TokenIssuer
	scopes          ScopeValidator
	pkce            PkceVerifier
	defaultLifetime time.Duration
}

func NewGrantDispatcher(clients *ClientDirectory, codes *AuthorizationCodeLedger, issuer TokenIssuer, defaultLifetime time.Duration) *GrantDispatcher {
	if defaultLifetime <= 0 {
		defaultLifetime = DefaultAccessTokenLifetime
	}
	return &GrantDispatcher{
		clients:         clients,
		codes:           codes,
		issuer:          issuer,
		defaultLifetime: defaultLifetime,
	}
}

// Handle dispatches on grant_type. Unsupported grants are rejected before
// any credential is inspected.
func (d *GrantDispatcher) Handle(ctx context.Context, req TokenRequest) (*AccessToken, error) {
	switch oauth2.GrantType(req.GrantType) {
	case oauth2.ClientCredentials:
		return d.handleClientCredentials(ctx, req)
	case oauth2.AuthorizationCode:
		return d.handleAuthorizationCode(ctx, req)
	case "":
		return nil, InvalidRequest("grant_type is required")
	default:
		return nil, UnsupportedGrantType("grant_type %q is not supported", req.GrantType)
	}
}

func (d *GrantDispatcher) handleClientCredentials(ctx context.Context, req TokenRequest) (*AccessToken, error) {
	creds, err := ExtractClientCredentials(req.Form, req.AuthorizationHeader)
	if err != nil {
		return nil, err
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, InvalidRequest("client_id and client_secret are required")
	}

	client, err := d.clients.Authenticate(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	if !d.clients.SupportsGrantType(client, oauth2.ClientCredentials) {
		return nil, UnauthorizedClient("client may not use the client_credentials grant")
	}

	scopes, err := d.scopes.Validate(client, ParseScope(req.Form.Get("scope")))
	if err != nil {
		return nil, err
	}

	if client.UserID == "" {
		return nil, InvalidClient("client has no principal to issue tokens for")
	}

	return d.issue(ctx, Grant{
		Principal: Principal{ID: client.UserID},
		ClientID:  client.ID,
		Scopes:    scopes,
		Lifetime:  d.lifetime(client),
	})
}

func (d *GrantDispatcher) handleAuthorizationCode(ctx context.Context, req TokenRequest) (*AccessToken, error) {
	creds, err := ExtractClientCredentials(req.Form, req.AuthorizationHeader)
	if err != nil {
		return nil, err
	}
	if creds.ClientID == "" {
		return nil, InvalidRequest("client_id is required")
	}
	redirectURI := req.Form.Get("redirect_uri")
	verifier := req.Form.Get("code_verifier")

	code, err := d.codes.FindValid(ctx, req.Form.Get("code"))
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, InvalidGrant("authorization code is invalid, expired or already used")
		}
		return nil, ServerError(err)
	}

	if code.ClientID != creds.ClientID {
		return nil, InvalidClient("authorization code was issued to another client")
	}

	client, err := d.clients.Authenticate(ctx, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, err
	}

	// Exact match only, whatever the authorize-time redirect policy is.
	if redirectURI != code.RedirectURI {
		return nil, InvalidGrant("redirect_uri does not match the authorization request")
	}

	if !d.pkce.Verify(code.CodeChallenge, code.CodeChallengeMethod, verifier) {
		return nil, InvalidGrant("code_verifier does not match the code challenge")
	}

	if err := d.codes.MarkUsed(ctx, code.Code); err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, InvalidGrant("authorization code is invalid, expired or already used")
		}
		return nil, ServerError(err)
	}

	return d.issue(ctx, Grant{
		Principal: code.Principal,
		ClientID:  client.ID,
		Scopes:    code.Scopes,
		Lifetime:  d.lifetime(client),
	})
}

func (d *GrantDispatcher) issue(ctx context.Context, grant Grant) (*AccessToken, error) {
	token, err := d.issuer.Issue(ctx, grant)
	if err != nil {
		return nil, ServerError(err)
	}
	token.Principal = grant.Principal
	return token, nil
}

func (d *GrantDispatcher) lifetime(client *Client) time.Duration {
	if client.AccessTokenLifetime > 0 {
		return time.Duration(client.AccessTokenLifetime) * time.Second
	}
	return d.defaultLifetime
}
