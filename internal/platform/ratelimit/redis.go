// Package ratelimit throttles repeated login and redemption attempts with fixed windows in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient parses url, applies connection timeouts and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// incrWindow counts one attempt and makes sure the counter carries a TTL. Keys left without one
// (e.g. written by an older client) get the window applied on their next attempt.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Limiter allows at most limit attempts per key in each window.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewLimiter returns a fixed-window limiter. Keys are stored under prefix.
func NewLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow records one attempt for key and reports whether it is within the limit. A non-positive
// limit disables limiting. Counting and expiry happen in one server-side script.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	n, err := incrWindow.Run(ctx, l.client, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", l.prefix, err)
	}
	return n <= l.limit, nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.prefix+":"+key).Err()
}
