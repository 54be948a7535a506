package models

import (
	"time"
)

// AccessLog is one request handled by the authorize or token endpoint.
type AccessLog struct {
	ID         uint   `gorm:"primaryKey"`
	Endpoint   string `gorm:"not null;index"`
	Outcome    string `gorm:"not null"`
	DurationMs int64
	ClientID   string `gorm:"index"`
	UserID     string
	RemoteAddr string
	CreatedAt  time.Time `gorm:"index"`
}

func (AccessLog) TableName() string {
	return "oauth_access_logs"
}
