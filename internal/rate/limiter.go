package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle  bool
	MaxVerifyFailures int
	VerifyCooldown    time.Duration
}

// Limiter enforces per-phone and per-IP limits on failed code verifications
// using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckVerify checks whether the phone+IP pair is within the failure budget.
// Returns an error if rate-limited.
func (l *Limiter) CheckVerify(ctx context.Context, phone, ip string) error {
	if l == nil || l.config.MaxVerifyFailures <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, verifyPhoneKey(phone), l.config.MaxVerifyFailures); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, verifyIPKey(ip), l.config.MaxVerifyFailures); err != nil {
			return err
		}
	}

	return nil
}

// IncrementVerify records a failed verification for the phone+IP pair.
func (l *Limiter) IncrementVerify(ctx context.Context, phone, ip string) error {
	if l == nil || l.config.MaxVerifyFailures <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, verifyPhoneKey(phone), l.config.VerifyCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxVerifyFailures) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, verifyIPKey(ip), l.config.VerifyCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxVerifyFailures) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetVerify clears the failure counter for the phone. The IP counter is
// left alone so one success cannot launder failures against other numbers.
func (l *Limiter) ResetVerify(ctx context.Context, phone string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, verifyPhoneKey(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// VerifyFailures returns the current failure counter for a phone.
func (l *Limiter) VerifyFailures(ctx context.Context, phone string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, verifyPhoneKey(phone)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func verifyPhoneKey(phone string) string {
	return "pvf:" + phone
}

func verifyIPKey(ip string) string {
	return "pvfi:" + ip
}
