package auth

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/go-oauth2/oauth2/v4"
	oauth2models "github.com/go-oauth2/oauth2/v4/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRoles map[string]string

func (r staticRoles) GetUserRole(userID string) (string, error) {
	if userID == "broken" {
		return "", errors.New("lookup failed")
	}
	return r[userID], nil
}

type failingCodeStore struct {
	*GormCodeStore
}

func (failingCodeStore) CreateCode(context.Context, *AuthorizationCode) error {
	return errors.New("disk full")
}

func TestOAuthServerInitialization(t *testing.T) {
	db := setupTestDB(t)

	oauthService := NewGormOAuthService(db, testJWTSecret, nil)
	assert.NotNil(t, oauthService)
	assert.NotNil(t, oauthService.Clients())
	assert.NotNil(t, oauthService.Ledger())
	assert.Equal(t, DefaultCodeTTL, oauthService.Ledger().defaultTTL)
}

func TestJWTTokenGeneration(t *testing.T) {
	db := setupTestDB(t)

	// Create a test user first (required for token generation)
	testUser := &models.User{
		Email: "test3@example.com",
		Name:  "Test User 3",
		Role:  "admin",
	}
	require.NoError(t, db.Create(testUser).Error)

	createTestClient(t, db, clientFixture{
		ID: "test_client", Secret: "test_secret", Confidential: true, UserID: testUser.ID,
		GrantTypes: []string{"client_credentials"},
		Scopes:     []string{"read", "write"},
	})

	roles := staticRoles{strconv.FormatUint(uint64(testUser.ID), 10): "admin"}
	oauthService := NewGormOAuthService(db, testJWTSecret, roles)
	token, err := oauthService.Token(context.Background(), tokenRequest(url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"test_client"},
		"client_secret": {"test_secret"},
		"scope":         {"read write"},
	}))
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)

	parsed, err := jwt.Parse(token.Value, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "HS512", parsed.Method.Alg())

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "admin", claims["role"])
	assert.Equal(t, "read write", claims["scope"])
	assert.NotEmpty(t, claims["jti"])
}

func TestJWTAccessGenerate_Token(t *testing.T) {
	generate := NewJWTAccessGenerate([]byte(testJWTSecret), jwt.SigningMethodHS256, staticRoles{"42": "admin"})
	now := time.Now()

	info := oauth2models.NewToken()
	info.SetAccessCreateAt(now)
	info.SetAccessExpiresIn(time.Minute)
	info.SetRefreshCreateAt(now)
	info.SetRefreshExpiresIn(time.Hour)

	access, refresh, err := generate.Token(context.Background(), &oauth2.GenerateBasic{
		Client:    &oauth2models.Client{ID: "c1", UserID: "42"},
		UserID:    "42",
		TokenInfo: info,
	}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	// falls back to the client's user
	_, _, err = generate.Token(context.Background(), &oauth2.GenerateBasic{
		Client:    &oauth2models.Client{ID: "c1", UserID: "42"},
		TokenInfo: info,
	}, false)
	assert.NoError(t, err)

	_, _, err = generate.Token(context.Background(), &oauth2.GenerateBasic{
		Client:    &oauth2models.Client{ID: "c1"},
		TokenInfo: info,
	}, false)
	assert.Error(t, err)

	_, _, err = generate.Token(context.Background(), &oauth2.GenerateBasic{
		Client:    &oauth2models.Client{ID: "c1"},
		UserID:    "broken",
		TokenInfo: info,
	}, false)
	assert.Error(t, err)
}

func TestJWTAccessGenerate_DefaultRole(t *testing.T) {
	generate := NewJWTAccessGenerate([]byte(testJWTSecret), jwt.SigningMethodHS256, staticRoles{})

	role, err := generate.userRole("unknown")
	require.NoError(t, err)
	assert.Equal(t, "user", role)
}

func TestOAuthService_IssueCodeStoreFailure(t *testing.T) {
	db := setupTestDB(t)
	createTestClient(t, db, clientFixture{
		ID: "c1", Secret: "s1", Confidential: true,
		GrantTypes:   []string{"authorization_code"},
		RedirectURIs: []string{"https://app.example/cb"},
	})
	service := NewOAuthService(Options{
		ClientStore: NewGormClientStore(db),
		CodeStore:   failingCodeStore{NewGormCodeStore(db)},
		Issuer:      NewJWTTokenIssuer(NewJWTAccessGenerate([]byte(testJWTSecret), jwt.SigningMethodHS512, nil)),
	})

	outcome, err := service.ValidateAuthorizationRequest(context.Background(), AuthorizationRequest{
		ClientID: "c1", ResponseType: "code", RedirectURI: "https://app.example/cb",
	})
	require.NoError(t, err)

	_, err = service.IssueCode(context.Background(), outcome, Principal{ID: "42"})
	oauthErr := requireOAuthError(t, err, "server_error")
	assert.ErrorContains(t, oauthErr.Cause(), "disk full")
}
