// Package local is a self-hosted phone verification backend. Codes are
// generated here, stored hashed in Redis, delivered through an sms.Sender and
// exchanged for a signed grant on success.
package local

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/internal/limiters"
	"github.com/spacekayak/phoneauth/internal/otp"
	"github.com/spacekayak/phoneauth/internal/rate"
	"github.com/spacekayak/phoneauth/internal/stores"
	"github.com/spacekayak/phoneauth/jwt"
	"github.com/spacekayak/phoneauth/sms"
)

// subjectNamespace derives stable user IDs from verified phone numbers.
var subjectNamespace = uuid.MustParse("6f1c3e0a-2b7d-5c4e-9a18-3d0f7b2e8c61")

// Backend implements phoneauth.Backend on Redis plus an SMS gateway.
type Backend struct {
	cfg        Config
	challenges *stores.ChallengeStore
	sends      *limiters.SendLimiter
	verifies   *rate.Limiter
	sender     sms.Sender
	grants     *jwt.Manager

	logger  *zap.Logger
	metrics *phoneauth.Metrics
	audit   phoneauth.AuditSink
	now     func() time.Time
}

// Option customizes a Backend.
type Option func(*Backend)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(b *Backend) { b.cfg = cfg }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records Backend* counters into m.
func WithMetrics(m *phoneauth.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// WithAuditSink reports issued and rejected codes to sink. Emit is called
// synchronously.
func WithAuditSink(sink phoneauth.AuditSink) Option {
	return func(b *Backend) { b.audit = sink }
}

// New builds a Backend. grants may be nil, in which case a successful
// verification yields a Grant with only Subject and Phone set.
func New(rdb redis.UniversalClient, sender sms.Sender, grants *jwt.Manager, opts ...Option) (*Backend, error) {
	if rdb == nil {
		return nil, errors.New("local: redis client is required")
	}
	if sender == nil {
		return nil, errors.New("local: sms sender is required")
	}

	b := &Backend{
		cfg:    DefaultConfig(),
		sender: sender,
		grants: grants,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if b.audit == nil {
		b.audit = phoneauth.NoOpSink{}
	}
	b.logger = b.logger.Named("local")

	b.challenges = stores.NewChallengeStore(rdb, b.cfg.KeyPrefix)
	b.sends = limiters.NewSendLimiter(rdb, limiters.SendConfig{
		MaxPerWindow:     b.cfg.SendMaxPerWindow,
		Window:           b.cfg.SendWindow,
		EnableIPThrottle: b.cfg.SendMaxPerIP > 0,
		MaxPerIPWindow:   b.cfg.SendMaxPerIP,
		Cooldown:         b.cfg.ResendCooldown,
	})
	b.verifies = rate.New(rdb, rate.Config{
		EnableIPThrottle:  true,
		MaxVerifyFailures: b.cfg.VerifyMaxFailures,
		VerifyCooldown:    b.cfg.VerifyWindow,
	})
	return b, nil
}

/*
====================================
SEND
====================================
*/

// SendCode issues a fresh code for phone and delivers it. A previous live
// code for the same phone is replaced.
func (b *Backend) SendCode(ctx context.Context, phone string) error {
	if !validPhone(phone) {
		return ErrInvalidPhone
	}
	ip := phoneauth.ClientIPFromContext(ctx)

	if err := b.sends.CheckSend(ctx, phone, ip); err != nil {
		mapped := mapSendLimiterError(err)
		if errors.Is(mapped, ErrRateLimited) || errors.Is(mapped, ErrCooldown) {
			b.metrics.Inc(phoneauth.MetricBackendSendRateLimited)
		}
		b.logger.Warn("send refused",
			zap.String("phone", phoneauth.MaskPhone(phone)),
			zap.String("ip", ip),
			zap.Error(err),
		)
		return mapped
	}

	code, err := otp.New(b.cfg.CodeDigits)
	if err != nil {
		return err
	}
	now := b.now()
	record := &stores.ChallengeRecord{
		Phone:     phone,
		CodeHash:  otp.Hash(code),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(b.cfg.CodeTTL).Unix(),
	}
	if err := b.challenges.Save(ctx, record, b.cfg.CodeTTL); err != nil {
		_ = b.sends.ReleaseCooldown(ctx, phone)
		return mapChallengeError(err)
	}

	if err := b.sender.SendOTP(ctx, phone, code); err != nil {
		_ = b.challenges.Delete(ctx, phone)
		_ = b.sends.ReleaseCooldown(ctx, phone)
		b.logger.Error("code delivery failed",
			zap.String("phone", phoneauth.MaskPhone(phone)),
			zap.Error(err),
		)
		b.emit(ctx, phoneauth.AuditCodeSendFailed, phone, false, ErrDelivery, nil)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	b.metrics.Inc(phoneauth.MetricBackendCodeIssued)
	b.logger.Info("code issued",
		zap.String("phone", phoneauth.MaskPhone(phone)),
		zap.Time("expires_at", time.Unix(record.ExpiresAt, 0)),
	)
	b.emit(ctx, phoneauth.AuditCodeSent, phone, true, nil, map[string]string{
		"expires_at": strconv.FormatInt(record.ExpiresAt, 10),
	})
	return nil
}

// CooldownRemaining reports how long phone must wait before another send.
func (b *Backend) CooldownRemaining(ctx context.Context, phone string) (time.Duration, error) {
	d, err := b.sends.CooldownRemaining(ctx, phone)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return d, nil
}

/*
====================================
VERIFY
====================================
*/

// VerifyCode consumes the live code for phone. The code stays valid after a
// mismatch until MaxAttempts wrong guesses were made.
func (b *Backend) VerifyCode(ctx context.Context, phone, code string) (*phoneauth.Grant, error) {
	if !validPhone(phone) {
		return nil, ErrInvalidPhone
	}
	if len(code) != b.cfg.CodeDigits || !otp.IsNumeric(code) {
		return nil, ErrInvalidCode
	}
	ip := phoneauth.ClientIPFromContext(ctx)

	if err := b.verifies.CheckVerify(ctx, phone, ip); err != nil {
		return nil, mapVerifyLimiterError(err)
	}

	_, err := b.challenges.Consume(ctx, phone, otp.Hash(code), b.cfg.MaxAttempts)
	if err != nil {
		mapped := mapChallengeError(err)
		switch {
		case errors.Is(mapped, ErrCodeRejected):
			b.metrics.Inc(phoneauth.MetricBackendVerifyRejected)
			_ = b.verifies.IncrementVerify(ctx, phone, ip)
		case errors.Is(mapped, ErrAttemptsExceeded):
			b.metrics.Inc(phoneauth.MetricBackendAttemptsExceeded)
			_ = b.verifies.IncrementVerify(ctx, phone, ip)
		}
		if !errors.Is(mapped, ErrUnavailable) {
			b.emit(ctx, phoneauth.AuditCodeRejected, phone, false, mapped, nil)
		}
		b.logger.Warn("code rejected",
			zap.String("phone", phoneauth.MaskPhone(phone)),
			zap.String("ip", ip),
			zap.Error(err),
		)
		return nil, mapped
	}

	_ = b.verifies.ResetVerify(ctx, phone)

	subject := uuid.NewSHA1(subjectNamespace, []byte(phone)).String()
	grant := &phoneauth.Grant{Subject: subject, Phone: phone}
	if b.grants != nil {
		signed, err := b.grants.CreateGrant(subject, phone)
		if err != nil {
			return nil, fmt.Errorf("local: issue grant: %w", err)
		}
		grant.AccessToken = signed.Token
		grant.ExpiresAt = signed.ExpiresAt
	}

	b.metrics.Inc(phoneauth.MetricBackendGrantIssued)
	b.logger.Info("phone verified",
		zap.String("phone", phoneauth.MaskPhone(phone)),
		zap.String("subject", subject),
	)
	b.emit(ctx, phoneauth.AuditCodeVerified, phone, true, nil, map[string]string{"subject": subject})
	return grant, nil
}

func (b *Backend) emit(ctx context.Context, eventType, phone string, success bool, err error, metadata map[string]string) {
	event := phoneauth.AuditEvent{
		Timestamp: b.now().UTC(),
		EventType: eventType,
		Phone:     phoneauth.MaskPhone(phone),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	b.audit.Emit(ctx, event)
}

func validPhone(phone string) bool {
	if len(phone) < 9 || len(phone) > 16 || phone[0] != '+' {
		return false
	}
	return otp.IsNumeric(phone[1:])
}

// MetricsSnapshot exposes the backend counters to metric exporters.
func (b *Backend) MetricsSnapshot() phoneauth.MetricsSnapshot {
	return b.metrics.Snapshot()
}

// AuditDropped is always zero: backend audit events are emitted synchronously.
func (b *Backend) AuditDropped() uint64 {
	return 0
}
