package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/go-oauth2/oauth2/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrClientNotFound    = errors.New("client_not_found")
	ErrInvalidClientData = errors.New("invalid_client_data")
)

// CreateClientInput describes a client registration. Scopes nil leaves the client unrestricted.
type CreateClientInput struct {
	Name                 string
	UserID               uint
	Confidential         bool
	RedirectURIs         []string
	GrantTypes           []string
	Scopes               []string
	PKCEMethods          []string
	AccessTokenLifetime  int
	RefreshTokenLifetime int
}

type ClientService interface {
	// CreateClient registers a client and returns it with the plain secret, which is never stored.
	CreateClient(input CreateClientInput) (*models.OAuthClient, string, error)
	GetClientsByUserID(userID uint) ([]models.OAuthClient, error)
	GetClientByID(id string) (*models.OAuthClient, error)
	DeleteClient(clientID string, userID uint) error
	SetEnabled(clientID string, userID uint, enabled bool) error
	// RotateSecret replaces the secret of a confidential client and returns the new plain secret.
	RotateSecret(clientID string, userID uint) (string, error)
}

type clientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) ClientService {
	return &clientService{db: db}
}

func (s *clientService) CreateClient(input CreateClientInput) (*models.OAuthClient, string, error) {
	if err := validateClientInput(input); err != nil {
		return nil, "", err
	}

	client := &models.OAuthClient{
		ID:                   uuid.New().String(),
		Name:                 input.Name,
		UserID:               input.UserID,
		Confidential:         input.Confidential,
		Enabled:              true,
		GrantTypes:           strings.Join(input.GrantTypes, " "),
		RedirectURIs:         strings.Join(input.RedirectURIs, " "),
		PKCEMethods:          strings.Join(input.PKCEMethods, " "),
		AccessTokenLifetime:  input.AccessTokenLifetime,
		RefreshTokenLifetime: input.RefreshTokenLifetime,
	}
	if input.Scopes != nil {
		scopes := strings.Join(input.Scopes, " ")
		client.Scopes = &scopes
	}

	var secret string
	if input.Confidential {
		var err error
		secret, client.Secret, err = newSecret()
		if err != nil {
			return nil, "", err
		}
	}

	if err := s.db.Create(client).Error; err != nil {
		return nil, "", fmt.Errorf("create client: %w", err)
	}
	return client, secret, nil
}

func (s *clientService) GetClientsByUserID(userID uint) ([]models.OAuthClient, error) {
	var clients []models.OAuthClient
	if err := s.db.Where("user_id = ?", userID).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *clientService) GetClientByID(id string) (*models.OAuthClient, error) {
	var client models.OAuthClient
	if err := s.db.Where("id = ?", id).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *clientService) DeleteClient(clientID string, userID uint) error {
	result := s.db.Where("id = ? AND user_id = ?", clientID, userID).Delete(&models.OAuthClient{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (s *clientService) SetEnabled(clientID string, userID uint, enabled bool) error {
	result := s.db.Model(&models.OAuthClient{}).
		Where("id = ? AND user_id = ?", clientID, userID).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Update reports zero rows when the value is unchanged on some drivers
		if _, err := s.owned(clientID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *clientService) RotateSecret(clientID string, userID uint) (string, error) {
	client, err := s.owned(clientID, userID)
	if err != nil {
		return "", err
	}
	if !client.Confidential {
		return "", fmt.Errorf("%w: public clients have no secret", ErrInvalidClientData)
	}

	secret, hash, err := newSecret()
	if err != nil {
		return "", err
	}
	if err := s.db.Model(client).Update("secret", hash).Error; err != nil {
		return "", fmt.Errorf("rotate client secret: %w", err)
	}
	return secret, nil
}

func (s *clientService) owned(clientID string, userID uint) (*models.OAuthClient, error) {
	var client models.OAuthClient
	err := s.db.Where("id = ? AND user_id = ?", clientID, userID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func newSecret() (plain, hash string, err error) {
	plain = uuid.New().String()
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash client secret: %w", err)
	}
	return plain, string(hashed), nil
}

func validateClientInput(input CreateClientInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidClientData)
	}
	if len(input.GrantTypes) == 0 {
		return fmt.Errorf("%w: at least one grant type is required", ErrInvalidClientData)
	}
	for _, gt := range input.GrantTypes {
		switch gt {
		case string(oauth2.AuthorizationCode):
			if len(input.RedirectURIs) == 0 {
				return fmt.Errorf("%w: authorization_code requires a redirect URI", ErrInvalidClientData)
			}
		case string(oauth2.ClientCredentials):
			if !input.Confidential {
				return fmt.Errorf("%w: client_credentials requires a confidential client", ErrInvalidClientData)
			}
		default:
			return fmt.Errorf("%w: unsupported grant type %q", ErrInvalidClientData, gt)
		}
	}
	for _, m := range input.PKCEMethods {
		if m != string(oauth2.CodeChallengePlain) && m != string(oauth2.CodeChallengeS256) {
			return fmt.Errorf("%w: unsupported PKCE method %q", ErrInvalidClientData, m)
		}
	}
	for _, uri := range input.RedirectURIs {
		if strings.ContainsAny(uri, " \t\n") || uri == "" {
			return fmt.Errorf("%w: invalid redirect URI %q", ErrInvalidClientData, uri)
		}
	}
	return nil
}
