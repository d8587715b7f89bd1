// Package ratelimit bounds how often a subject may trigger an action, using
// fixed windows counted in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/tokens"
	"github.com/redis/go-redis/v9"
)

// Limiter admits or rejects one attempt for subject.
type Limiter interface {
	// Allow returns common.ErrRateLimited once subject exceeded its budget
	// for the current window.
	Allow(ctx context.Context, subject string) error
}

// RedisLimiter counts attempts per subject in a window that starts with the
// first attempt.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter allows max attempts per window. Keys are namespaced by
// prefix and carry a digest of the subject, never the subject itself.
func NewRedisLimiter(client redis.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, prefix: prefix, max: max, window: window}
}

// allowLua counts one attempt and makes sure the counter expires, even when
// an earlier call left it without a TTL.
var allowLua = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

func (l *RedisLimiter) Allow(ctx context.Context, subject string) error {
	count, err := allowLua.Run(ctx, l.redis, []string{l.key(subject)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: rate limiter: %v", common.ErrUpstream, err)
	}

	if count > int64(l.max) {
		return common.ErrRateLimited
	}

	return nil
}

func (l *RedisLimiter) key(subject string) string {
	return l.prefix + ":" + tokens.Hash(subject)
}

// Disabled admits everything.
type Disabled struct{}

func (Disabled) Allow(context.Context, string) error { return nil }

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
