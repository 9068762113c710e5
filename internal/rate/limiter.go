package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned by Allow when the address is over budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis I/O failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds throttle tuning parameters.
type Config struct {
	// MaxAttempts failures are tolerated per window; zero disables the throttle.
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

// KEYS[1] counter
// ARGV[1] window ms
const incrementScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`

var incrementLua = redis.NewScript(incrementScript)

// Limiter is a Redis-backed fixed-window failure counter keyed by client IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gg"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether the throttle does anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.MaxAttempts > 0 && l.config.Window > 0
}

func (l *Limiter) key(ip string) string {
	return l.config.Prefix + ":rl:signin:" + ip
}

// Check returns a positive retry-after when ip has exhausted its budget.
func (l *Limiter) Check(ctx context.Context, ip string) (time.Duration, error) {
	if !l.Enabled() || ip == "" {
		return 0, nil
	}

	pipe := l.redis.Pipeline()
	get := pipe.Get(ctx, l.key(ip))
	ttl := pipe.PTTL(ctx, l.key(ip))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, err := get.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < int64(l.config.MaxAttempts) {
		return 0, nil
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = l.config.Window
	}
	return remaining, nil
}

// Allow is Check expressed as an error: ErrRateLimited when over budget.
func (l *Limiter) Allow(ctx context.Context, ip string) error {
	retry, err := l.Check(ctx, ip)
	if err != nil {
		return err
	}
	if retry > 0 {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed sign-in from ip.
func (l *Limiter) RecordFailure(ctx context.Context, ip string) error {
	if !l.Enabled() || ip == "" {
		return nil
	}
	if err := incrementLua.Run(ctx, l.redis, []string{l.key(ip)}, l.config.Window.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears the counter for ip.
func (l *Limiter) Reset(ctx context.Context, ip string) error {
	if !l.Enabled() || ip == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
