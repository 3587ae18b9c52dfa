package credential

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// redeemScript deletes the entry only if the supplied digest matches,
// in a single server-side step. Expired keys are gone by the time the
// script runs, so expiry needs no explicit check here.
var redeemScript = redis.NewScript(`
local key = KEYS[1]
local digest = ARGV[1]

local stored = redis.call("HGET", key, "digest")
if not stored then
  return false
end
if stored ~= digest then
  return false
end

local payload = redis.call("HGET", key, "payload")
redis.call("DEL", key)
return payload or ""
`)

// RedisStore is a Store backed by redis, safe across process instances.
// TTLs are enforced by redis key expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a redis-backed credential store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Issue stores a fresh secret for (kind, subject), replacing any prior entry
func (s *RedisStore) Issue(ctx context.Context, kind Kind, subject, payload string, ttl time.Duration) (string, error) {
	secret, err := generateSecret(kind)
	if err != nil {
		return "", err
	}

	key := storageKey(kind, subject)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "digest", digest(secret), "payload", payload)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}

	return secret, nil
}

// Redeem validates and deletes the entry atomically via a Lua script
func (s *RedisStore) Redeem(ctx context.Context, kind Kind, subject, supplied string) (string, error) {
	payload, err := redeemScript.Run(ctx, s.client, []string{storageKey(kind, subject)}, digest(supplied)).Text()
	if errors.Is(err, redis.Nil) {
		log.Printf("credential redeem failed: no match for %s:%s", kind, subject)
		return "", ErrInvalid
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}
