package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultCodeTTL is how long an authorization code stays exchangeable.
	DefaultCodeTTL = 10 * time.Minute

	codeEntropyBytes = 32
)

// IssueParams describes a code to mint after the user approved a request.
type IssueParams struct {
	Client              *Client
	Principal           Principal
	RedirectURI         string
	Scopes              []string
	TTL                 time.Duration
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
}

// AuthorizationCodeLedger creates, finds and consumes authorization codes.
// Codes move Issued -> Used or Issued -> Expired; expiry is computed.
type AuthorizationCodeLedger struct {
	store      CodeStore
	defaultTTL time.Duration
	now        func() time.Time
}

func NewAuthorizationCodeLedger(store CodeStore, defaultTTL time.Duration) *AuthorizationCodeLedger {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCodeTTL
	}
	return &AuthorizationCodeLedger{
		store:      store,
		defaultTTL: defaultTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates and persists a fresh code.
func (l *AuthorizationCodeLedger) Issue(ctx context.Context, params IssueParams) (*AuthorizationCode, error) {
	if params.Client == nil {
		return nil, errors.New("issue authorization code: client is required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = l.defaultTTL
	}

	value, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate authorization code: %w", err)
	}

	now := l.now()
	code := &AuthorizationCode{
		Code:                value,
		ClientID:            params.Client.ID,
		Principal:           params.Principal,
		RedirectURI:         params.RedirectURI,
		Scopes:              params.Scopes,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		State:               params.State,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
	if err := l.store.CreateCode(ctx, code); err != nil {
		return nil, fmt.Errorf("store authorization code: %w", err)
	}
	return code, nil
}

// FindValid returns the code only while it is unused and unexpired.
// Callers must still win MarkUsed before acting on it.
func (l *AuthorizationCodeLedger) FindValid(ctx context.Context, code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}
	record, err := l.store.GetCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !record.Valid(l.now()) {
		return nil, ErrCodeNotFound
	}
	return record, nil
}

// MarkUsed consumes the code. It returns ErrCodeNotFound when the code was
// already used or expired, which is how a concurrent exchange loses.
func (l *AuthorizationCodeLedger) MarkUsed(ctx context.Context, code string) error {
	ok, err := l.store.MarkCodeUsed(ctx, code, l.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeNotFound
	}
	return nil
}

// RemoveExpired deletes expired codes and returns how many were removed.
func (l *AuthorizationCodeLedger) RemoveExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpiredCodes(ctx, l.now())
}

// Sweep runs RemoveExpired every interval until ctx is done.
func (l *AuthorizationCodeLedger) Sweep(ctx context.Context, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.RemoveExpired(ctx)
			if err != nil {
				logger.WithError(err).Warn("Expired authorization code sweep failed")
				continue
			}
			if removed > 0 {
				logger.WithField("removed", removed).Debug("Expired authorization codes removed")
			}
		}
	}
}

func generateCode() (string, error) {
	buf := make([]byte, codeEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
