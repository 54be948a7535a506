package models

import (
	"time"
)

type OAuthCode struct {
	Code                string `gorm:"primaryKey"`
	ClientID            string `gorm:"not null;index"`
	UserID              string `gorm:"not null"`
	Scopes              *string
	RedirectURI         string `gorm:"not null"`
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Used                bool      `gorm:"not null;default:false"`
	ExpiresAt           time.Time `gorm:"not null;index"`
	CreatedAt           time.Time
}

func (OAuthCode) TableName() string {
	return "oauth_codes"
}
