package auth

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/go-oauth2/oauth2/v4"
	"golang.org/x/crypto/bcrypt"
)

// RedirectPolicy controls how requested redirect URIs are matched at authorize time.
type RedirectPolicy string

const (
	// RedirectPolicyExact requires a byte-for-byte match with a registered URI.
	RedirectPolicyExact RedirectPolicy = "exact"
	// RedirectPolicyPrefix also accepts a URI that starts with a registered URI.
	// It allows open-redirect style bypasses and exists for legacy clients only.
	RedirectPolicyPrefix RedirectPolicy = "prefix"
)

// ClientDirectory looks up and authenticates clients.
type ClientDirectory struct {
	store  ClientStore
	policy RedirectPolicy
}

func NewClientDirectory(store ClientStore, policy RedirectPolicy) *ClientDirectory {
	if policy == "" {
		policy = RedirectPolicyExact
	}
	return &ClientDirectory{store: store, policy: policy}
}

// Lookup returns the client or ErrClientNotFound.
func (d *ClientDirectory) Lookup(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}
	return d.store.GetClient(ctx, clientID)
}

// Authenticate verifies the client's credentials. Public clients are not
// asked for a secret; disabled clients never authenticate.
func (d *ClientDirectory) Authenticate(ctx context.Context, clientID, secret string) (*Client, error) {
	client, err := d.Lookup(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, InvalidClient("client authentication failed")
		}
		return nil, ServerError(err)
	}

	if !client.Enabled {
		return nil, InvalidClient("client authentication failed")
	}
	if !client.Confidential {
		return client, nil
	}

	if secret == "" || client.SecretHash == "" {
		return nil, InvalidClient("client authentication failed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
		return nil, InvalidClient("client authentication failed")
	}
	return client, nil
}

// ValidateRedirectURI reports whether uri is registered for the client.
func (d *ClientDirectory) ValidateRedirectURI(client *Client, uri string) bool {
	if uri == "" {
		return false
	}
	for _, registered := range client.RedirectURIs {
		if registered == uri {
			return true
		}
		if d.policy == RedirectPolicyPrefix && registered != "" && strings.HasPrefix(uri, registered) {
			return true
		}
	}
	return false
}

func (d *ClientDirectory) SupportsGrantType(client *Client, grantType oauth2.GrantType) bool {
	return slices.Contains(client.GrantTypes, string(grantType))
}

// SupportsPKCEMethod checks the client's PKCE methods. An empty method is "plain".
func (d *ClientDirectory) SupportsPKCEMethod(client *Client, method string) bool {
	if method == "" {
		method = string(oauth2.CodeChallengePlain)
	}
	return slices.Contains(client.PKCEMethods, method)
}
