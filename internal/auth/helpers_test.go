package auth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franciscosanchezn/gin-oauth2-server/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter atomic.Int64

// setupTestDB opens a private shared-cache in-memory database. A single
// connection keeps every statement on the same in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:authtest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(&models.User{}, &models.OAuthClient{}, &models.OAuthCode{})
	require.NoError(t, err)

	return db
}

func hashSecret(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

type clientFixture struct {
	ID           string
	Secret       string
	UserID       uint
	Confidential bool
	Disabled     bool
	GrantTypes   []string
	RedirectURIs []string
	Scopes       []string
	PKCEMethods  []string
}

func createTestClient(t *testing.T, db *gorm.DB, f clientFixture) *models.OAuthClient {
	t.Helper()
	client := &models.OAuthClient{
		ID:           f.ID,
		Name:         "Test " + f.ID,
		UserID:       f.UserID,
		Confidential: f.Confidential,
		Enabled:      !f.Disabled,
		GrantTypes:   strings.Join(f.GrantTypes, " "),
		RedirectURIs: strings.Join(f.RedirectURIs, " "),
		PKCEMethods:  strings.Join(f.PKCEMethods, " "),
	}
	if f.Secret != "" {
		client.Secret = hashSecret(t, f.Secret)
	}
	if f.Scopes != nil {
		scopes := strings.Join(f.Scopes, " ")
		client.Scopes = &scopes
	}
	require.NoError(t, db.Create(client).Error)
	return client
}

type memClientStore map[string]*Client

func (m memClientStore) GetClient(_ context.Context, id string) (*Client, error) {
	client, ok := m[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// fixedClock returns a settable clock for ledger tests.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
