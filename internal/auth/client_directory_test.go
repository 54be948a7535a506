package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/go-oauth2/oauth2/v4"
	oauth2errors "github.com/go-oauth2/oauth2/v4/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingClientStore struct{}

func (failingClientStore) GetClient(context.Context, string) (*Client, error) {
	return nil, errors.New("database is locked")
}

func newTestDirectory(t *testing.T, policy RedirectPolicy) *ClientDirectory {
	store := memClientStore{
		"confidential": {
			ID: "confidential", Confidential: true, Enabled: true,
			SecretHash:   hashSecret(t, "s1"),
			RedirectURIs: []string{"https://app.example/cb", "https://app.example/other"},
			GrantTypes:   []string{"authorization_code", "client_credentials"},
			PKCEMethods:  []string{"S256"},
		},
		"public": {
			ID: "public", Confidential: false, Enabled: true,
			RedirectURIs: []string{"https://spa.example/cb"},
			GrantTypes:   []string{"authorization_code"},
		},
		"disabled": {
			ID: "disabled", Confidential: true, Enabled: false,
			SecretHash: hashSecret(t, "s1"),
			GrantTypes: []string{"client_credentials"},
		},
	}
	return NewClientDirectory(store, policy)
}

func TestClientDirectory_Lookup(t *testing.T) {
	directory := newTestDirectory(t, RedirectPolicyExact)
	ctx := context.Background()

	client, err := directory.Lookup(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, "public", client.ID)

	_, err = directory.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = directory.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestClientDirectory_Authenticate(t *testing.T) {
	directory := newTestDirectory(t, RedirectPolicyExact)
	ctx := context.Background()

	testCases := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{name: "confidential with correct secret", clientID: "confidential", secret: "s1"},
		{name: "confidential with wrong secret", clientID: "confidential", secret: "wrong", wantErr: true},
		{name: "confidential without secret", clientID: "confidential", secret: "", wantErr: true},
		{name: "public without secret", clientID: "public", secret: ""},
		{name: "public ignores secret", clientID: "public", secret: "anything"},
		{name: "disabled with correct secret", clientID: "disabled", secret: "s1", wantErr: true},
		{name: "unknown client", clientID: "missing", secret: "s1", wantErr: true},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			client, err := directory.Authenticate(ctx, tt.clientID, tt.secret)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.clientID, client.ID)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, oauth2errors.ErrInvalidClient)
			assert.Nil(t, client)
		})
	}
}

func TestClientDirectory_AuthenticateStoreFailure(t *testing.T) {
	directory := NewClientDirectory(failingClientStore{}, RedirectPolicyExact)

	_, err := directory.Authenticate(context.Background(), "c1", "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, oauth2errors.ErrServerError)
	assert.NotContains(t, AsError(err).Description, "locked")
}

func TestClientDirectory_ValidateRedirectURI(t *testing.T) {
	client := &Client{ID: "c1", RedirectURIs: []string{"https://app.example/cb"}}

	testCases := []struct {
		uri    string
		exact  bool
		prefix bool
	}{
		{uri: "https://app.example/cb", exact: true, prefix: true},
		{uri: "https://app.example/cb/", exact: false, prefix: true},
		{uri: "https://app.example/cb?x=1", exact: false, prefix: true},
		{uri: "https://app.example/cb.evil.example", exact: false, prefix: true},
		{uri: "https://APP.example/cb", exact: false, prefix: false},
		{uri: "https://evil.example/cb", exact: false, prefix: false},
		{uri: "", exact: false, prefix: false},
	}

	exact := NewClientDirectory(memClientStore{}, RedirectPolicyExact)
	prefix := NewClientDirectory(memClientStore{}, RedirectPolicyPrefix)
	for _, tt := range testCases {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.exact, exact.ValidateRedirectURI(client, tt.uri), "exact policy")
			assert.Equal(t, tt.prefix, prefix.ValidateRedirectURI(client, tt.uri), "prefix policy")
		})
	}
}

func TestClientDirectory_DefaultPolicyIsExact(t *testing.T) {
	directory := NewClientDirectory(memClientStore{}, "")
	client := &Client{RedirectURIs: []string{"https://app.example/cb"}}

	assert.False(t, directory.ValidateRedirectURI(client, "https://app.example/cb/extra"))
}

func TestClientDirectory_Supports(t *testing.T) {
	directory := newTestDirectory(t, RedirectPolicyExact)
	confidential, err := directory.Lookup(context.Background(), "confidential")
	require.NoError(t, err)
	public, err := directory.Lookup(context.Background(), "public")
	require.NoError(t, err)

	assert.True(t, directory.SupportsGrantType(confidential, oauth2.ClientCredentials))
	assert.False(t, directory.SupportsGrantType(public, oauth2.ClientCredentials))
	assert.True(t, directory.SupportsGrantType(public, oauth2.AuthorizationCode))

	assert.True(t, directory.SupportsPKCEMethod(confidential, "S256"))
	assert.False(t, directory.SupportsPKCEMethod(confidential, "plain"))
	assert.False(t, directory.SupportsPKCEMethod(confidential, ""))
	assert.False(t, directory.SupportsPKCEMethod(public, "S256"))
}
