package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSendRateLimited        = errors.New("send rate limited")
	ErrSendCooldown           = errors.New("send cooldown active")
	ErrSendLimiterUnavailable = errors.New("send limiter unavailable")
)

// SendConfig holds the code-send thresholds.
type SendConfig struct {
	// MaxPerWindow caps sends per phone inside Window.
	MaxPerWindow int
	Window       time.Duration
	// EnableIPThrottle adds a per-IP window with MaxPerIPWindow.
	EnableIPThrottle bool
	MaxPerIPWindow   int
	// Cooldown is the minimum gap between two sends to the same phone.
	// Zero disables it.
	Cooldown time.Duration
}

// SendLimiter throttles code delivery per phone and per client IP, and
// enforces the server-side resend cooldown.
type SendLimiter struct {
	redis  redis.UniversalClient
	config SendConfig
}

func NewSendLimiter(redisClient redis.UniversalClient, cfg SendConfig) *SendLimiter {
	return &SendLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSend claims the cooldown slot for phone and counts the send in every
// enabled window. ip may be empty.
func (l *SendLimiter) CheckSend(ctx context.Context, phone, ip string) error {
	if l == nil {
		return nil
	}

	if l.config.Cooldown > 0 {
		ok, err := l.redis.SetNX(ctx, sendCooldownKey(phone), 1, l.config.Cooldown).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
		}
		if !ok {
			return ErrSendCooldown
		}
	}

	if l.config.MaxPerWindow > 0 {
		if err := l.enforceFixedWindow(ctx, sendPhoneKey(phone), l.config.MaxPerWindow); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" && l.config.MaxPerIPWindow > 0 {
		if err := l.enforceFixedWindow(ctx, sendIPKey(ip), l.config.MaxPerIPWindow); err != nil {
			return err
		}
	}
	return nil
}

// CooldownRemaining returns how long until phone may receive another code.
func (l *SendLimiter) CooldownRemaining(ctx context.Context, phone string) (time.Duration, error) {
	if l == nil || l.config.Cooldown <= 0 {
		return 0, nil
	}
	ttl, err := l.redis.PTTL(ctx, sendCooldownKey(phone)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// ReleaseCooldown drops the cooldown for phone. Used when delivery failed so
// the user is not locked out of a retry by a code that never arrived.
func (l *SendLimiter) ReleaseCooldown(ctx context.Context, phone string) error {
	if l == nil || l.config.Cooldown <= 0 {
		return nil
	}
	if err := l.redis.Del(ctx, sendCooldownKey(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}
	return nil
}

func (l *SendLimiter) enforceFixedWindow(ctx context.Context, key string, max int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrSendLimiterUnavailable, err)
		}
	}

	if count > int64(max) {
		return ErrSendRateLimited
	}

	return nil
}

func sendPhoneKey(phone string) string {
	return "pas:" + phone
}

func sendIPKey(ip string) string {
	return "pasip:" + ip
}

func sendCooldownKey(phone string) string {
	return "pacd:" + phone
}
