package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces authorization code keys.
const DefaultRedisKeyPrefix = "oauth2:code:"

// createCodeScript stores the hash only when the key is new and lets Redis
// expire it at the code's expiry. ARGV[1] is the expiry in unix ms.
var createCodeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
return 1
`)

// markUsedScript is the Redis equivalent of
// UPDATE ... SET used = true WHERE used = false AND expires_at > now.
var markUsedScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'used') ~= '0' then
  return 0
end
local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if expiresAt == nil or expiresAt <= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// RedisCodeStore keeps authorization codes as Redis hashes.
type RedisCodeStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisCodeStore(client redis.UniversalClient, keyPrefix string) *RedisCodeStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisCodeStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisCodeStore) key(code string) string {
	return s.keyPrefix + code
}

func (s *RedisCodeStore) CreateCode(ctx context.Context, code *AuthorizationCode) error {
	scopes, scopesSet := "", "0"
	if code.Scopes != nil {
		scopes, scopesSet = FormatScope(code.Scopes), "1"
	}
	used := "0"
	if code.Used {
		used = "1"
	}

	created, err := createCodeScript.Run(ctx, s.client, []string{s.key(code.Code)},
		code.ExpiresAt.UnixMilli(),
		"client_id", code.ClientID,
		"user_id", code.Principal.ID,
		"redirect_uri", code.RedirectURI,
		"scopes", scopes,
		"scopes_set", scopesSet,
		"code_challenge", code.CodeChallenge,
		"code_challenge_method", code.CodeChallengeMethod,
		"state", code.State,
		"used", used,
		"expires_at", code.ExpiresAt.UnixMilli(),
		"created_at", code.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis create code: %w", err)
	}
	if created != 1 {
		return errors.New("redis create code: code already exists")
	}
	return nil
}

func (s *RedisCodeStore) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	fields, err := s.client.HGetAll(ctx, s.key(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get code: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrCodeNotFound
	}

	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis get code: bad expires_at: %w", err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis get code: bad created_at: %w", err)
	}

	record := &AuthorizationCode{
		Code:                code,
		ClientID:            fields["client_id"],
		Principal:           Principal{ID: fields["user_id"]},
		RedirectURI:         fields["redirect_uri"],
		CodeChallenge:       fields["code_challenge"],
		CodeChallengeMethod: fields["code_challenge_method"],
		State:               fields["state"],
		Used:                fields["used"] == "1",
		ExpiresAt:           time.UnixMilli(expiresAt).UTC(),
		CreatedAt:           time.UnixMilli(createdAt).UTC(),
	}
	if fields["scopes_set"] == "1" {
		scopes := fields["scopes"]
		record.Scopes = splitNullable(&scopes)
	}
	return record, nil
}

func (s *RedisCodeStore) MarkCodeUsed(ctx context.Context, code string, now time.Time) (bool, error) {
	marked, err := markUsedScript.Run(ctx, s.client, []string{s.key(code)}, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("redis mark code used: %w", err)
	}
	return marked == 1, nil
}

// DeleteExpiredCodes removes codes Redis has not expired yet but whose
// expires_at has passed, e.g. after clock adjustments.
func (s *RedisCodeStore) DeleteExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan codes: %w", err)
		}
		for _, key := range keys {
			raw, err := s.client.HGet(ctx, key, "expires_at").Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("redis read code expiry: %w", err)
			}
			expiresAt, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || expiresAt > now.UnixMilli() {
				continue
			}
			n, err := s.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("redis delete code: %w", err)
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}
