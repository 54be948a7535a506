package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// Options wires the collaborators of an OAuthService.
type Options struct {
	ClientStore         ClientStore
	CodeStore           CodeStore
	Issuer              TokenIssuer
	RedirectPolicy      RedirectPolicy
	CodeTTL             time.Duration
	AccessTokenLifetime time.Duration
}

// OAuthService is the authorization server core behind the HTTP endpoints.
type OAuthService struct {
	clients    *ClientDirectory
	validator  *AuthorizationRequestValidator
	ledger     *AuthorizationCodeLedger
	dispatcher *GrantDispatcher
}

func NewOAuthService(opts Options) *OAuthService {
	clients := NewClientDirectory(opts.ClientStore, opts.RedirectPolicy)
	ledger := NewAuthorizationCodeLedger(opts.CodeStore, opts.CodeTTL)

	return &OAuthService{
		clients:    clients,
		validator:  NewAuthorizationRequestValidator(clients),
		ledger:     ledger,
		dispatcher: NewGrantDispatcher(clients, ledger, opts.Issuer, opts.AccessTokenLifetime),
	}
}

// NewGormOAuthService builds a service on the database stores with HS512 JWT access tokens.
func NewGormOAuthService(db *gorm.DB, jwtSecret string, roles RoleLookup) *OAuthService {
	return NewOAuthService(Options{
		ClientStore: NewGormClientStore(db),
		CodeStore:   NewGormCodeStore(db),
		Issuer:      NewJWTTokenIssuer(NewJWTAccessGenerate([]byte(jwtSecret), jwt.SigningMethodHS512, roles)),
	})
}

func (o *OAuthService) Clients() *ClientDirectory {
	return o.clients
}

func (o *OAuthService) Ledger() *AuthorizationCodeLedger {
	return o.ledger
}

func (o *OAuthService) ValidateAuthorizationRequest(ctx context.Context, req AuthorizationRequest) (*AuthorizationOutcome, error) {
	return o.validator.Validate(ctx, req)
}

// IssueCode mints a code for an approved authorization request.
func (o *OAuthService) IssueCode(ctx context.Context, outcome *AuthorizationOutcome, principal Principal) (*AuthorizationCode, error) {
	code, err := o.ledger.Issue(ctx, IssueParams{
		Client:              outcome.Client,
		Principal:           principal,
		RedirectURI:         outcome.RedirectURI,
		Scopes:              outcome.Scopes,
		CodeChallenge:       outcome.CodeChallenge,
		CodeChallengeMethod: outcome.CodeChallengeMethod,
		State:               outcome.State,
	})
	if err != nil {
		return nil, ServerError(err)
	}
	return code, nil
}

// Token handles a /token request.
func (o *OAuthService) Token(ctx context.Context, req TokenRequest) (*AccessToken, error) {
	return o.dispatcher.Handle(ctx, req)
}
