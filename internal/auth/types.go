package auth

import (
	"net/url"
	"time"
)

// Client is a registered OAuth2 client as seen by the protocol core.
type Client struct {
	ID           string
	Name         string
	SecretHash   string
	Confidential bool
	Enabled      bool
	RedirectURIs []string
	GrantTypes   []string
	// Scopes is the allowed scope set. nil means unrestricted.
	Scopes               []string
	PKCEMethods          []string
	AccessTokenLifetime  int
	RefreshTokenLifetime int
	// UserID is the owning user, the principal for client_credentials tokens.
	UserID string
}

// Principal is the authenticated resource owner a token or code is bound to.
type Principal struct {
	ID string
}

// AuthorizationCode binds a user's consent to a client and redirect target.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	Principal           Principal
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Used                bool
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// Valid reports whether the code can still be exchanged at now.
func (c *AuthorizationCode) Valid(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// AccessToken is what the TokenIssuer hands back.
type AccessToken struct {
	Value     string
	TokenType string
	ExpiresAt time.Time
	Scopes    []string
	// Principal the token acts for; filled in by GrantDispatcher.
	Principal Principal
}

// ExpiresIn returns the whole seconds left at now, never negative.
func (t *AccessToken) ExpiresIn(now time.Time) int64 {
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d.Round(time.Second) / time.Second)
}

// Grant is the input to a TokenIssuer.
type Grant struct {
	Principal Principal
	ClientID  string
	Scopes    []string
	Lifetime  time.Duration
}

// AuthorizationRequest carries the /authorize parameters.
type AuthorizationRequest struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizationOutcome is a validated authorization request, ready for
// consent rendering or code issuance.
type AuthorizationOutcome struct {
	Client              *Client
	ResponseType        string
	RedirectURI         string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// TokenRequest carries the /token form and the Authorization header.
type TokenRequest struct {
	GrantType           string
	Form                url.Values
	AuthorizationHeader string
}
