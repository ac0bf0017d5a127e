// Package app assembles the verification backend and its dependencies from
// process configuration. It is shared by the phoneauth binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/backend/local"
	"github.com/spacekayak/phoneauth/backend/supabase"
	"github.com/spacekayak/phoneauth/config"
	"github.com/spacekayak/phoneauth/jwt"
	"github.com/spacekayak/phoneauth/sms"
)

// Deps is everything the binaries need from the configured backend.
type Deps struct {
	Backend phoneauth.Backend
	// Local is set when AUTH_BACKEND=local.
	Local *local.Backend
	// Redis is set when AUTH_BACKEND=local.
	Redis redis.UniversalClient
	// Grants is set when GRANT_SIGNING_KEY is configured.
	Grants *jwt.Manager
	// Outbox is set in dev OTP mode.
	Outbox  *sms.DevOutbox
	Metrics *phoneauth.Metrics

	closers []func() error
}

// Health pings Redis. It reports ok for backends without local state.
func (d *Deps) Health(ctx context.Context) error {
	if d.Redis == nil {
		return nil
	}
	return d.Redis.Ping(ctx).Err()
}

// Close releases everything Build opened, in reverse order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Build connects the backend selected by cfg.AuthBackend. Redis is pinged
// so a bad REDIS_ADDR fails at startup.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}

	switch cfg.AuthBackend {
	case config.BackendSupabase:
		client, err := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, supabase.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		d.Backend = client
		return d, nil
	case config.BackendLocal:
	default:
		return nil, fmt.Errorf("app: unknown backend %q", cfg.AuthBackend)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	d.Redis = rdb
	d.closers = append(d.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("app: redis %s: %w", cfg.RedisAddr, err)
	}

	var senders sms.Multi
	if cfg.OTPReturnToClient {
		d.Outbox = sms.NewDevOutbox(cfg.OTPTTL)
		senders = append(senders, d.Outbox)
		logger.Warn("dev OTP mode enabled: codes are readable at /dev/otp and not sent by SMS")
	}
	if cfg.SMSLocalAPIKey != "" {
		senders = append(senders, sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	}

	if cfg.GrantSigningKey != "" {
		grants, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.GrantTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.GrantSigningKey),
			Issuer:        cfg.GrantIssuer,
		})
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("app: grants: %w", err)
		}
		d.Grants = grants
	}

	lc, err := cfg.LocalBackend()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Metrics = phoneauth.NewMetrics(phoneauth.MetricsConfig{Enabled: true})
	b, err := local.New(rdb, senders, d.Grants,
		local.WithConfig(lc),
		local.WithLogger(logger),
		local.WithMetrics(d.Metrics),
		local.WithAuditSink(phoneauth.NewZapSink(logger)),
	)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Local = b
	d.Backend = b
	return d, nil
}
