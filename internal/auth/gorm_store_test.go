package auth

import (
	"context"
	"testing"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormClientStore_GetClient(t *testing.T) {
	db := setupTestDB(t)
	createTestClient(t, db, clientFixture{
		ID: "c1", Secret: "s1", UserID: 7, Confidential: true,
		GrantTypes:   []string{"client_credentials", "authorization_code"},
		RedirectURIs: []string{"https://app.example/cb", "https://app.example/alt"},
		Scopes:       []string{"read", "write"},
		PKCEMethods:  []string{"S256"},
	})
	createTestClient(t, db, clientFixture{ID: "open", GrantTypes: []string{"authorization_code"}})
	createTestClient(t, db, clientFixture{ID: "none", Scopes: []string{}, Disabled: true})

	store := NewGormClientStore(db)
	ctx := context.Background()

	client, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, client.Confidential)
	assert.True(t, client.Enabled)
	assert.Equal(t, "7", client.UserID)
	assert.Equal(t, []string{"https://app.example/cb", "https://app.example/alt"}, client.RedirectURIs)
	assert.Equal(t, []string{"read", "write"}, client.Scopes)
	assert.Equal(t, []string{"S256"}, client.PKCEMethods)
	assert.NotEmpty(t, client.SecretHash)

	open, err := store.GetClient(ctx, "open")
	require.NoError(t, err)
	assert.Nil(t, open.Scopes, "NULL scopes mean unrestricted")
	assert.False(t, open.Confidential)
	assert.Empty(t, open.UserID)

	none, err := store.GetClient(ctx, "none")
	require.NoError(t, err)
	assert.NotNil(t, none.Scopes)
	assert.Empty(t, none.Scopes)
	assert.False(t, none.Enabled)

	_, err = store.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestGormClientStore_SoftDeletedClientIsGone(t *testing.T) {
	db := setupTestDB(t)
	createTestClient(t, db, clientFixture{ID: "c1", Secret: "s1", Confidential: true})
	require.NoError(t, db.Delete(&models.OAuthClient{ID: "c1"}).Error)

	_, err := NewGormClientStore(db).GetClient(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestGormCodeStore_RoundTrip(t *testing.T) {
	store := NewGormCodeStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	code := &AuthorizationCode{
		Code:                "abc",
		ClientID:            "c1",
		Principal:           Principal{ID: "42"},
		RedirectURI:         "https://app.example/cb",
		Scopes:              []string{"read"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		State:               "xyz",
		ExpiresAt:           now.Add(time.Minute),
		CreatedAt:           now,
	}
	require.NoError(t, store.CreateCode(ctx, code))

	found, err := store.GetCode(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ClientID)
	assert.Equal(t, "42", found.Principal.ID)
	assert.Equal(t, []string{"read"}, found.Scopes)
	assert.Equal(t, "S256", found.CodeChallengeMethod)
	assert.Equal(t, "xyz", found.State)
	assert.True(t, code.ExpiresAt.Equal(found.ExpiresAt))

	// nil scopes survive as NULL, empty scopes as an empty set
	code.Code, code.Scopes = "nil-scopes", nil
	require.NoError(t, store.CreateCode(ctx, code))
	found, err = store.GetCode(ctx, "nil-scopes")
	require.NoError(t, err)
	assert.Nil(t, found.Scopes)

	code.Code, code.Scopes = "empty-scopes", []string{}
	require.NoError(t, store.CreateCode(ctx, code))
	found, err = store.GetCode(ctx, "empty-scopes")
	require.NoError(t, err)
	assert.NotNil(t, found.Scopes)
	assert.Empty(t, found.Scopes)
}

func TestGormCodeStore_MarkCodeUsed(t *testing.T) {
	store := NewGormCodeStore(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateCode(ctx, &AuthorizationCode{
		Code: "live", ClientID: "c1", Principal: Principal{ID: "1"},
		RedirectURI: "https://app.example/cb", ExpiresAt: now.Add(time.Minute), CreatedAt: now,
	}))
	require.NoError(t, store.CreateCode(ctx, &AuthorizationCode{
		Code: "stale", ClientID: "c1", Principal: Principal{ID: "1"},
		RedirectURI: "https://app.example/cb", ExpiresAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Minute),
	}))

	ok, err := store.MarkCodeUsed(ctx, "live", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkCodeUsed(ctx, "live", now)
	require.NoError(t, err)
	assert.False(t, ok, "second consumption must lose")

	ok, err = store.MarkCodeUsed(ctx, "stale", now)
	require.NoError(t, err)
	assert.False(t, ok, "expired code cannot be consumed")

	ok, err = store.MarkCodeUsed(ctx, "missing", now)
	require.NoError(t, err)
	assert.False(t, ok)
}
