package models

import (
	"time"

	"gorm.io/gorm"
)

// OAuthClient is the persisted form of a registered OAuth2 client.
// List-valued columns are space-separated.
type OAuthClient struct {
	ID                   string `gorm:"primaryKey"`
	Secret               string // bcrypt hash, empty for public clients
	Name                 string
	UserID               uint   // Owning user; tokens minted by client_credentials act on its behalf
	Confidential         bool   `gorm:"not null"`
	Enabled              bool   `gorm:"not null"`
	Scopes               *string // NULL means the client may request any scope
	GrantTypes           string  // "authorization_code client_credentials"
	RedirectURIs         string  // ordered, first entry is the default
	PKCEMethods          string  `gorm:"column:pkce_methods"` // "plain S256"
	AccessTokenLifetime  int     // seconds, 0 uses the server default
	RefreshTokenLifetime int     // seconds
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DeletedAt            gorm.DeletedAt `gorm:"index"`
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}
