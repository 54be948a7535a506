package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/database"
	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	// Parse command line flags
	role := flag.String("role", "admin", "User role (admin or user)")
	dbPath := flag.String("db", "oauth2.sqlite", "SQLite database path")
	redirectURI := flag.String("redirect-uri", "http://localhost:3000/callback", "Redirect URI for the authorization code grant")
	flag.Parse()

	db, err := database.InitDatabase(database.DatabaseConfig{Driver: "sqlite", Path: *dbPath})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Determine client credentials based on role
	var clientID, clientSecret string
	if *role == "user" {
		clientID = "user-client"
		clientSecret = "user-secret-123"
	} else {
		clientID = "dev-client"
		clientSecret = "dev-secret-123"
	}

	// Check if client already exists
	var existing models.OAuthClient
	if err := db.Where("id = ?", clientID).First(&existing).Error; err == nil {
		fmt.Printf("Development client already exists for role '%s'!\n", *role)
		fmt.Printf("Client ID: %s\n", clientID)
		fmt.Printf("Client Secret: %s\n", clientSecret)
		return
	}

	// Get or create user with specified role
	user := getUserForRole(db, *role)
	if user == nil {
		log.Fatal("Failed to get user for role:", *role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash secret:", err)
	}

	scopes := "read write"
	client := models.OAuthClient{
		ID:           clientID,
		Secret:       string(hash),
		Name:         fmt.Sprintf("Development %s Client", *role),
		UserID:       user.ID,
		Confidential: true,
		Enabled:      true,
		Scopes:       &scopes,
		GrantTypes:   strings.Join([]string{"authorization_code", "client_credentials"}, " "),
		RedirectURIs: *redirectURI,
		PKCEMethods:  "S256 plain",
	}

	if err := db.Create(&client).Error; err != nil {
		log.Fatal("Failed to create client:", err)
	}

	fmt.Printf("✓ Development OAuth client created for role '%s'!\n", *role)
	fmt.Printf("Client ID: %s\n", clientID)
	fmt.Printf("Client Secret: %s\n", clientSecret)
	fmt.Printf("User: %s / %s (ID: %d)\n", user.Email, devPassword, user.ID)
	fmt.Println("\nClient credentials:")
	fmt.Printf("curl -X POST http://localhost:8080/oauth2/token \\\n")
	fmt.Printf("  -d 'grant_type=client_credentials' -d 'scope=read write' \\\n")
	fmt.Printf("  -u '%s:%s'\n", clientID, clientSecret)
	fmt.Println("\nAuthorization code: sign in and open")
	fmt.Printf("http://localhost:8080/oauth2/authorize?response_type=code&client_id=%s&redirect_uri=%s&scope=read&state=xyz\n", clientID, *redirectURI)
}

const devPassword = "password123"

// getUserForRole gets or creates a user with the specified role
func getUserForRole(db *gorm.DB, role string) *models.User {
	var user models.User
	email := fmt.Sprintf("%s@example.com", role)

	// Try to find existing user
	if err := db.Where("email = ?", email).First(&user).Error; err == nil {
		fmt.Printf("Found existing user: %s (ID: %d, Role: %s)\n", user.Email, user.ID, user.Role)
		return &user
	}

	user = models.User{
		Email:    email,
		Name:     fmt.Sprintf("%s User", role),
		Role:     role,
		Password: devPassword,
	}
	if err := user.HashPassword(); err != nil {
		log.Printf("Failed to hash password: %v", err)
		return nil
	}

	if err := db.Create(&user).Error; err != nil {
		log.Printf("Failed to create user: %v", err)
		return nil
	}

	fmt.Printf("Created new user: %s (ID: %d, Role: %s)\n", user.Email, user.ID, user.Role)
	return &user
}
