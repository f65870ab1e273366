// Package ratelimit throttles how often a one-time code may be reissued for
// the same purpose and recipient.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCooldown        = errors.New("please wait before requesting another code")
	ErrTooManyRequests = errors.New("too many code requests, try again later")
)

// LimitError is returned when a request is throttled
type LimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s (retry in %ds)", e.Err.Error(), e.RetryAfterSeconds())
}

func (e *LimitError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header
func (e *LimitError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Config controls the limiter. A zero Cooldown or Max disables that check.
type Config struct {
	Cooldown time.Duration // minimum gap between two requests
	Window   time.Duration // counting window
	Max      int           // requests allowed per window
}

// Limiter enforces a per-key cooldown and a per-window cap in Redis
type Limiter struct {
	rdb redis.UniversalClient
	cfg Config
}

func NewLimiter(rdb redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	return &Limiter{rdb: rdb, cfg: cfg}
}

func cooldownKey(key string) string { return "otp_rate:cooldown:" + key }
func countKey(key string) string { return "otp_rate:count:" + key }

// Allow records a request for key, or rejects it with a *LimitError
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if l.cfg.Cooldown > 0 {
		ok, err := l.rdb.SetNX(ctx, cooldownKey(key), 1, l.cfg.Cooldown).Result()
		if err != nil {
			return fmt.Errorf("rate limit check failed: %w", err)
		}
		if !ok {
			return &LimitError{Err: ErrCooldown, RetryAfter: l.remaining(ctx, cooldownKey(key), l.cfg.Cooldown)}
		}
	}

	if l.cfg.Max <= 0 {
		return nil
	}

	count, err := l.rdb.Incr(ctx, countKey(key)).Result()
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if count == 1 {
		if err := l.rdb.PExpire(ctx, countKey(key), l.cfg.Window).Err(); err != nil {
			return fmt.Errorf("rate limit update failed: %w", err)
		}
	}
	if int(count) > l.cfg.Max {
		return &LimitError{Err: ErrTooManyRequests, RetryAfter: l.remaining(ctx, countKey(key), l.cfg.Window)}
	}
	return nil
}

func (l *Limiter) remaining(ctx context.Context, key string, fallback time.Duration) time.Duration {
	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return fallback
	}
	return ttl
}

// Reset clears both counters for key
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, cooldownKey(key), countKey(key)).Err()
}
