// Package session is the durable ledger of issued refresh tokens. One
// redis hash per token (keyed by the sha256 of the presented token), a
// family index correlating every token descended from one login, and a
// user index for logout-everywhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when no ledger row exists for a hash.
	ErrNotFound = errors.New("session record not found")
	// ErrExpired is returned when the ledger row has passed its expiry.
	ErrExpired = errors.New("session record expired")
	// ErrConsumed is returned when the row exists but was already rotated
	// or revoked. This is the reuse signal.
	ErrConsumed = errors.New("session record already consumed")
	// ErrRedisUnavailable wraps backend failures.
	ErrRedisUnavailable = errors.New("session redis unavailable")
)

// Record is one outstanding refresh token. RevokedAt zero means live.
type Record struct {
	UserID    string
	FamilyID  string
	UserAgent string
	IP        string
	CreatedAt int64
	ExpiresAt int64
	RevokedAt int64
}

const (
	consumeStatusNotFound int64 = 0
	consumeStatusExpired  int64 = 1
	consumeStatusConsumed int64 = 2
	consumeStatusOK       int64 = 3
)

// consumeIfLiveScript transitions a row from live to consumed exactly
// once. Expiry is exclusive: a row consumed at its expiry instant is dead.
const consumeIfLiveScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return {0}
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if not revoked or revoked ~= "0" then
  return {2}
end
local exp = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if not exp or exp <= tonumber(ARGV[1]) then
  return {1}
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return {3, redis.call("HGET", KEYS[1], "user_id"), redis.call("HGET", KEYS[1], "family_id")}
`

var consumeIfLiveLua = redis.NewScript(consumeIfLiveScript)

// markRevokedScript sets the revocation timestamp once; re-revoking an
// already revoked row is a no-op so family revocation stays idempotent.
const markRevokedScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local revoked = redis.call("HGET", KEYS[1], "revoked_at")
if revoked and revoked ~= "0" then
  return 0
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
return 1
`

var markRevokedLua = redis.NewScript(markRevokedScript)

// Store persists Records in redis.
type Store struct {
	redis  *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(hash [32]byte) string {
	return fmt.Sprintf("%s:rt:%x", s.prefix, hash)
}

func (s *Store) familyKey(familyID string) string {
	return s.prefix + ":fam:" + familyID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":usr:" + userID
}

// Save writes a new ledger row and indexes it under its family and user.
// Rows live for the full refresh TTL even after revocation so reuse of a
// rotated token keeps being detectable until it would have expired anyway.
func (s *Store) Save(ctx context.Context, hash [32]byte, rec *Record, ttl time.Duration) error {
	key := s.key(hash)

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"user_id", rec.UserID,
			"family_id", rec.FamilyID,
			"user_agent", rec.UserAgent,
			"ip", rec.IP,
			"created_at", strconv.FormatInt(rec.CreatedAt, 10),
			"expires_at", strconv.FormatInt(rec.ExpiresAt, 10),
			"revoked_at", "0",
		)
		pipe.Expire(ctx, key, ttl)
		pipe.SAdd(ctx, s.familyKey(rec.FamilyID), key)
		pipe.Expire(ctx, s.familyKey(rec.FamilyID), ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), rec.FamilyID)
		pipe.Expire(ctx, s.userKey(rec.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeIfLive atomically transitions the row for hash from live to
// consumed. Exactly one concurrent caller wins; the rest observe
// ErrConsumed. Returns the row's user and family ids on success.
func (s *Store) ConsumeIfLive(ctx context.Context, hash [32]byte, now time.Time) (userID, familyID string, err error) {
	result, err := consumeIfLiveLua.Run(ctx, s.redis, []string{s.key(hash)}, now.Unix()).Result()
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return "", "", fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return "", "", fmt.Errorf("%w: invalid consume script status", ErrRedisUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return "", "", ErrNotFound
	case consumeStatusExpired:
		return "", "", ErrExpired
	case consumeStatusConsumed:
		return "", "", ErrConsumed
	case consumeStatusOK:
		if len(parts) < 3 {
			return "", "", fmt.Errorf("%w: missing consume script payload", ErrRedisUnavailable)
		}
		return luaString(parts[1]), luaString(parts[2]), nil
	default:
		return "", "", fmt.Errorf("%w: unknown consume script status", ErrRedisUnavailable)
	}
}

// RevokeFamily marks every row in the family revoked. Idempotent.
func (s *Store) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	keys, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, key := range keys {
		if err := markRevokedLua.Run(ctx, s.redis, []string{key}, now.Unix()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// RevokeAllForUser revokes every family ever indexed for the user.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	families, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, familyID := range families {
		if err := s.RevokeFamily(ctx, familyID, now); err != nil {
			return err
		}
	}
	return nil
}

// FamilyLive reports whether the family still has at least one live,
// unexpired row.
func (s *Store) FamilyLive(ctx context.Context, familyID string, now time.Time) (bool, error) {
	keys, err := s.redis.SMembers(ctx, s.familyKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	for _, key := range keys {
		vals, err := s.redis.HMGet(ctx, key, "revoked_at", "expires_at").Result()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		revoked := redisString(vals[0])
		expires, _ := strconv.ParseInt(redisString(vals[1]), 10, 64)
		if revoked == "0" && expires > now.Unix() {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the row for hash, mainly for audit and tests.
func (s *Store) Get(ctx context.Context, hash [32]byte) (*Record, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{
		UserID:    vals["user_id"],
		FamilyID:  vals["family_id"],
		UserAgent: vals["user_agent"],
		IP:        vals["ip"],
	}
	rec.CreatedAt, _ = strconv.ParseInt(vals["created_at"], 10, 64)
	rec.ExpiresAt, _ = strconv.ParseInt(vals["expires_at"], 10, 64)
	rec.RevokedAt, _ = strconv.ParseInt(vals["revoked_at"], 10, 64)
	return rec, nil
}

func luaString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func redisString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
