package phoneauth

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by phoneauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Flow    FlowConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig controls the verification flow itself.
type FlowConfig struct {
	// CountryCode is prefixed to the national number before it reaches the backend.
	CountryCode string
	// ResendCooldown is the countdown, in ticks, started after every successful send.
	ResendCooldown int
	// TickInterval is the countdown period. One second in production.
	TickInterval time.Duration
	// CallTimeout bounds a single backend call. Zero means no extra deadline.
	CallTimeout time.Duration
}

// AuditConfig defines a public type used by phoneauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by phoneauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			CountryCode:    "+91",
			ResendCooldown: 60,
			TickInterval:   time.Second,
			CallTimeout:    30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the controller cannot run with.
func (c *Config) Validate() error {
	cc := strings.TrimSpace(c.Flow.CountryCode)
	if cc == "" || cc[0] != '+' || len(cc) < 2 || len(cc) > 4 {
		return errors.New("Flow CountryCode must look like +<1-3 digits>")
	}
	if !isDigits(cc[1:]) {
		return errors.New("Flow CountryCode must contain digits after '+'")
	}
	if c.Flow.ResendCooldown <= 0 {
		return errors.New("Flow ResendCooldown must be > 0")
	}
	if c.Flow.TickInterval <= 0 {
		return errors.New("Flow TickInterval must be > 0")
	}
	if c.Flow.CallTimeout < 0 {
		return errors.New("Flow CallTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
