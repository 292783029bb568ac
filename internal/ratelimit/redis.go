package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/relaypoint/mailadmin/internal/storage"
	"github.com/redis/go-redis/v9"
)

// RedisStore for multi-node deployments. The check-and-increment runs as a
// Lua script, which Redis executes atomically, so the bound comparison and
// the write cannot interleave with another caller on the same key.
type RedisStore struct {
	redis *storage.RedisClient
}

func NewRedisStore(r *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: r}
}

// Keys carry their window start in the hash; a mismatched window reads as
// count 0 and is overwritten on the first increment of the new window. TTL
// of two window lengths lets dead keys expire on their own.
const tryIncrementScript = `
local window = ARGV[1]
local bound = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local count = 0
if redis.call('HGET', KEYS[1], 'window') == window then
  count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
end
if count + 1 > bound then
  return {0, count}
end
count = count + 1
redis.call('HSET', KEYS[1], 'window', window, 'count', count)
redis.call('EXPIRE', KEYS[1], ttl)
return {1, count}
`

func redisKey(key Key) string {
	return fmt.Sprintf("quota:%s", key.String())
}

func (s *RedisStore) TryIncrement(ctx context.Context, key Key, bound int, now time.Time) (Result, error) {
	ws := WindowStart(key.Kind, now)
	ttl := int(2 * key.Kind.Duration() / time.Second)

	raw, err := s.redis.Eval(ctx, tryIncrementScript,
		[]string{redisKey(key)},
		ws.Unix(), bound, ttl,
	)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, raw)
	}

	allowed, _ := reply[0].(int64)
	count, _ := reply[1].(int64)

	return Result{Allowed: allowed == 1, CountAfter: int(count)}, nil
}

const resetScript = `
redis.call('HSET', KEYS[1], 'window', ARGV[1], 'count', 0)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return 1
`

func (s *RedisStore) Reset(ctx context.Context, key Key, now time.Time) error {
	ws := WindowStart(key.Kind, now)
	ttl := int(2 * key.Kind.Duration() / time.Second)

	if _, err := s.redis.Eval(ctx, resetScript, []string{redisKey(key)}, ws.Unix(), ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

const peekScript = `
if redis.call('HGET', KEYS[1], 'window') == ARGV[1] then
  return tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
end
return 0
`

func (s *RedisStore) Peek(ctx context.Context, key Key, now time.Time) (int, error) {
	ws := WindowStart(key.Kind, now)

	raw, err := s.redis.Eval(ctx, peekScript, []string{redisKey(key)}, ws.Unix())
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	count, _ := raw.(int64)
	return int(count), nil
}
