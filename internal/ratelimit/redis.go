package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var hitScript = redis.NewScript(`
-- KEYS[1] = window key
-- ARGV[1] = window_ms (int)
--
-- Returns {count, ttl_ms}. The window starts at the first hit and the key
-- expires with it, so the next hit opens a fresh window with count 1.
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisBackend shares windows across processes. The increment and expiry run
// in one Lua script, so concurrent hits are counted exactly.
type RedisBackend struct {
	rdb    redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedisBackend(rdb redis.Scripter) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: "ratelimit:", now: time.Now}
}

func (b *RedisBackend) Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if key == "" || limit <= 0 || window <= 0 {
		return Result{}, ErrInvalidArgument
	}

	vals, err := hitScript.Run(ctx, b.rdb, []string{b.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis hit: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("ratelimit: unexpected script reply %v", vals)
	}

	now := b.now()
	resetAt := now.Add(time.Duration(vals[1]) * time.Millisecond)
	return decide(vals[0], limit, resetAt, now), nil
}
