package local

import (
	"errors"
	"time"
)

// Config holds the policy of the self-hosted backend.
type Config struct {
	CodeDigits  int
	CodeTTL     time.Duration
	MaxAttempts int

	SendMaxPerWindow int
	SendWindow       time.Duration
	SendMaxPerIP     int
	ResendCooldown   time.Duration

	VerifyMaxFailures int
	VerifyWindow      time.Duration

	// KeyPrefix namespaces challenge records in Redis.
	KeyPrefix string
}

// DefaultConfig returns production defaults: six-digit codes valid for five
// minutes, five attempts per code, five sends per phone per hour and a
// server-side cooldown matching the client's sixty-second countdown.
func DefaultConfig() Config {
	return Config{
		CodeDigits:        6,
		CodeTTL:           5 * time.Minute,
		MaxAttempts:       5,
		SendMaxPerWindow:  5,
		SendWindow:        time.Hour,
		SendMaxPerIP:      20,
		ResendCooldown:    60 * time.Second,
		VerifyMaxFailures: 10,
		VerifyWindow:      15 * time.Minute,
		KeyPrefix:         "pac",
	}
}

// Validate rejects configurations the backend cannot enforce.
func (c Config) Validate() error {
	if c.CodeDigits < 4 || c.CodeDigits > 10 {
		return errors.New("CodeDigits must be between 4 and 10")
	}
	if c.CodeTTL <= 0 {
		return errors.New("CodeTTL must be > 0")
	}
	if c.MaxAttempts <= 0 || c.MaxAttempts > 65535 {
		return errors.New("MaxAttempts must be between 1 and 65535")
	}
	if c.SendMaxPerWindow > 0 && c.SendWindow <= 0 {
		return errors.New("SendWindow must be > 0 when SendMaxPerWindow is set")
	}
	if c.SendMaxPerIP > 0 && c.SendWindow <= 0 {
		return errors.New("SendWindow must be > 0 when SendMaxPerIP is set")
	}
	if c.ResendCooldown < 0 {
		return errors.New("ResendCooldown must be >= 0")
	}
	if c.VerifyMaxFailures > 0 && c.VerifyWindow <= 0 {
		return errors.New("VerifyWindow must be > 0 when VerifyMaxFailures is set")
	}
	return nil
}
