package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-oauth2/oauth2/v4"
	"github.com/go-oauth2/oauth2/v4/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer mints bearer tokens. Token format and storage are its own business.
type TokenIssuer interface {
	Issue(ctx context.Context, grant Grant) (*AccessToken, error)
}

// RoleLookup resolves the role of a user id for the "role" claim.
type RoleLookup interface {
	GetUserRole(userID string) (string, error)
}

// JWTAccessGenerate generates JWT access tokens with uid and role claims.
// It satisfies the go-oauth2 oauth2.AccessGenerate interface.
type JWTAccessGenerate struct {
	SignedKey    []byte
	SignedMethod jwt.SigningMethod
	Roles        RoleLookup
}

// NewJWTAccessGenerate creates a JWT access token generator
func NewJWTAccessGenerate(key []byte, method jwt.SigningMethod, roles RoleLookup) *JWTAccessGenerate {
	return &JWTAccessGenerate{
		SignedKey:    key,
		SignedMethod: method,
		Roles:        roles,
	}
}

var _ oauth2.AccessGenerate = (*JWTAccessGenerate)(nil)

// Token generates a signed access token, and a refresh token when asked to.
func (g *JWTAccessGenerate) Token(ctx context.Context, data *oauth2.GenerateBasic, isGenRefresh bool) (string, string, error) {
	userID := data.UserID
	if userID == "" {
		userID = data.Client.GetUserID()
	}
	if userID == "" {
		return "", "", fmt.Errorf("cannot generate token: no user ID available")
	}

	// The role is read at issuance so a demoted user never gets a stale one.
	role, err := g.userRole(userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch user role: %w", err)
	}

	createdAt := data.TokenInfo.GetAccessCreateAt()
	claims := jwt.MapClaims{
		"aud":  data.Client.GetID(),
		"exp":  createdAt.Add(data.TokenInfo.GetAccessExpiresIn()).Unix(),
		"iat":  createdAt.Unix(),
		"jti":  uuid.New().String(),
		"uid":  userID,
		"role": role,
	}
	if scope := data.TokenInfo.GetScope(); scope != "" {
		claims["scope"] = scope
	}

	access, err := jwt.NewWithClaims(g.SignedMethod, claims).SignedString(g.SignedKey)
	if err != nil {
		return "", "", err
	}

	refresh := ""
	if isGenRefresh {
		refreshClaims := jwt.MapClaims{
			"id":  uuid.New().String(),
			"exp": data.TokenInfo.GetRefreshCreateAt().Add(data.TokenInfo.GetRefreshExpiresIn()).Unix(),
		}
		refresh, err = jwt.NewWithClaims(g.SignedMethod, refreshClaims).SignedString(g.SignedKey)
		if err != nil {
			return "", "", err
		}
	}

	return access, refresh, nil
}

func (g *JWTAccessGenerate) userRole(userID string) (string, error) {
	if g.Roles == nil {
		return "user", nil
	}
	role, err := g.Roles.GetUserRole(userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "user", nil
	}
	return role, nil
}

// JWTTokenIssuer adapts an oauth2.AccessGenerate to the TokenIssuer interface.
type JWTTokenIssuer struct {
	generate oauth2.AccessGenerate
	now      func() time.Time
}

func NewJWTTokenIssuer(generate oauth2.AccessGenerate) *JWTTokenIssuer {
	return &JWTTokenIssuer{generate: generate, now: time.Now}
}

func (i *JWTTokenIssuer) Issue(ctx context.Context, grant Grant) (*AccessToken, error) {
	now := i.now()

	info := models.NewToken()
	info.SetClientID(grant.ClientID)
	info.SetUserID(grant.Principal.ID)
	info.SetScope(FormatScope(grant.Scopes))
	info.SetAccessCreateAt(now)
	info.SetAccessExpiresIn(grant.Lifetime)

	access, _, err := i.generate.Token(ctx, &oauth2.GenerateBasic{
		Client:    &models.Client{ID: grant.ClientID, UserID: grant.Principal.ID},
		UserID:    grant.Principal.ID,
		CreateAt:  now,
		TokenInfo: info,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	return &AccessToken{
		Value:     access,
		TokenType: "Bearer",
		ExpiresAt: now.Add(grant.Lifetime),
		Scopes:    grant.Scopes,
	}, nil
}
