package database

import (
	"fmt"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the tables of the authorization server.
func Migrate(db *gorm.DB) error {
	log.Info("Running database migrations")
	if err := db.AutoMigrate(
		&models.User{},
		&models.OAuthClient{},
		&models.OAuthCode{},
		&models.AccessLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
