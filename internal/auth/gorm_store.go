package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	internalmodels "github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"gorm.io/gorm"
)

type GormClientStore struct {
	db *gorm.DB
}

func NewGormClientStore(db *gorm.DB) *GormClientStore {
	return &GormClientStore{db: db}
}

func (s *GormClientStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var client internalmodels.OAuthClient
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return ClientFromModel(&client), nil
}

// ClientFromModel converts the persisted client into the protocol value object.
func ClientFromModel(m *internalmodels.OAuthClient) *Client {
	client := &Client{
		ID:                   m.ID,
		Name:                 m.Name,
		SecretHash:           m.Secret,
		Confidential:         m.Confidential,
		Enabled:              m.Enabled,
		RedirectURIs:         strings.Fields(m.RedirectURIs),
		GrantTypes:           strings.Fields(m.GrantTypes),
		PKCEMethods:          strings.Fields(m.PKCEMethods),
		AccessTokenLifetime:  m.AccessTokenLifetime,
		RefreshTokenLifetime: m.RefreshTokenLifetime,
	}
	if m.Scopes != nil {
		client.Scopes = strings.Fields(*m.Scopes)
		if client.Scopes == nil {
			client.Scopes = []string{}
		}
	}
	if m.UserID != 0 {
		client.UserID = strconv.FormatUint(uint64(m.UserID), 10)
	}
	return client
}

// GormCodeStore keeps authorization codes in the oauth_codes table.
type GormCodeStore struct {
	db *gorm.DB
}

func NewGormCodeStore(db *gorm.DB) *GormCodeStore {
	return &GormCodeStore{db: db}
}

func (s *GormCodeStore) CreateCode(ctx context.Context, code *AuthorizationCode) error {
	record := &internalmodels.OAuthCode{
		Code:                code.Code,
		ClientID:            code.ClientID,
		UserID:              code.Principal.ID,
		Scopes:              joinNullable(code.Scopes),
		RedirectURI:         code.RedirectURI,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		State:               code.State,
		Used:                code.Used,
		ExpiresAt:           code.ExpiresAt,
		CreatedAt:           code.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *GormCodeStore) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var record internalmodels.OAuthCode
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}

	return &AuthorizationCode{
		Code:                record.Code,
		ClientID:            record.ClientID,
		Principal:           Principal{ID: record.UserID},
		RedirectURI:         record.RedirectURI,
		Scopes:              splitNullable(record.Scopes),
		CodeChallenge:       record.CodeChallenge,
		CodeChallengeMethod: record.CodeChallengeMethod,
		State:               record.State,
		Used:                record.Used,
		ExpiresAt:           record.ExpiresAt,
		CreatedAt:           record.CreatedAt,
	}, nil
}

// MarkCodeUsed is one conditional UPDATE; the affected row count decides
// which of several concurrent exchanges wins.
func (s *GormCodeStore) MarkCodeUsed(ctx context.Context, code string, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&internalmodels.OAuthCode{}).
		Where("code = ? AND used = ? AND expires_at > ?", code, false, now).
		Update("used", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormCodeStore) DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&internalmodels.OAuthCode{})
	return result.RowsAffected, result.Error
}

func joinNullable(scopes []string) *string {
	if scopes == nil {
		return nil
	}
	joined := FormatScope(scopes)
	return &joined
}

func splitNullable(scopes *string) []string {
	if scopes == nil {
		return nil
	}
	fields := strings.Fields(*scopes)
	if fields == nil {
		return []string{}
	}
	return fields
}
