// Package config loads process configuration for the phoneauth binaries from
// the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spacekayak/phoneauth"
	"github.com/spacekayak/phoneauth/backend/local"
)

const (
	BackendLocal    = "local"
	BackendSupabase = "supabase"
)

// Config holds process configuration.
type Config struct {
	// Env is the application environment ("development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// AuthBackend selects the verification backend: "local" or "supabase".
	AuthBackend     string `mapstructure:"AUTH_BACKEND"`
	SupabaseURL     string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	// OTPReturnToClient enables dev OTP mode: codes go to an in-memory outbox
	// readable at GET /dev/otp instead of SMS. Refused when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// GrantSigningKey is the HS256 secret for grants issued by the local
	// backend. Empty disables signed grants.
	GrantSigningKey string        `mapstructure:"GRANT_SIGNING_KEY"`
	GrantIssuer     string        `mapstructure:"GRANT_ISSUER"`
	GrantTTL        time.Duration `mapstructure:"GRANT_TTL"`

	OTPTTL           time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts   int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	SendMaxPerWindow int           `mapstructure:"SEND_MAX_PER_WINDOW"`
	SendWindow       time.Duration `mapstructure:"SEND_WINDOW"`
	ResendCooldown   time.Duration `mapstructure:"RESEND_COOLDOWN"`

	CountryCode string `mapstructure:"COUNTRY_CODE"`
	PrefsPath   string `mapstructure:"PREFS_PATH"`

	// OTLPEndpoint enables OTLP metric export when set (host:port).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env from the working directory if present, then the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()

	localDefaults := local.DefaultConfig()
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("AUTH_BACKEND", BackendLocal)
	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("GRANT_SIGNING_KEY", "")
	v.SetDefault("GRANT_ISSUER", "phoneauth")
	v.SetDefault("GRANT_TTL", "1h")
	v.SetDefault("OTP_TTL", localDefaults.CodeTTL.String())
	v.SetDefault("OTP_MAX_ATTEMPTS", localDefaults.MaxAttempts)
	v.SetDefault("SEND_MAX_PER_WINDOW", localDefaults.SendMaxPerWindow)
	v.SetDefault("SEND_WINDOW", localDefaults.SendWindow.String())
	v.SetDefault("RESEND_COOLDOWN", localDefaults.ResendCooldown.String())
	v.SetDefault("COUNTRY_CODE", "+91")
	v.SetDefault("PREFS_PATH", "phoneauth-prefs.db")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.OTPReturnToClient && c.IsProduction() {
		return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	switch c.AuthBackend {
	case BackendLocal:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the local backend")
		}
		if !c.OTPReturnToClient && c.SMSLocalAPIKey == "" {
			return errors.New("config: SMS_LOCAL_API_KEY must be set unless OTP_RETURN_TO_CLIENT is true")
		}
		if c.IsProduction() && c.GrantSigningKey == "" {
			return errors.New("config: GRANT_SIGNING_KEY must be set when APP_ENV=production")
		}
		if c.GrantTTL <= 0 {
			return errors.New("config: GRANT_TTL must be > 0")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("config: SUPABASE_URL and SUPABASE_ANON_KEY must be set for the supabase backend")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_BACKEND %q", c.AuthBackend)
	}
	if _, err := c.LocalBackend(); err != nil {
		return err
	}
	flow := c.Flow()
	return flow.Validate()
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LocalBackend maps the OTP_* and SEND_* settings onto local.Config.
func (c *Config) LocalBackend() (local.Config, error) {
	lc := local.DefaultConfig()
	lc.CodeTTL = c.OTPTTL
	lc.MaxAttempts = c.OTPMaxAttempts
	lc.SendMaxPerWindow = c.SendMaxPerWindow
	lc.SendWindow = c.SendWindow
	lc.ResendCooldown = c.ResendCooldown
	if err := lc.Validate(); err != nil {
		return lc, fmt.Errorf("config: %w", err)
	}
	return lc, nil
}

// Flow returns controller configuration using COUNTRY_CODE and the resend
// cooldown rounded to whole seconds.
func (c *Config) Flow() phoneauth.Config {
	fc := phoneauth.DefaultConfig()
	fc.Flow.CountryCode = c.CountryCode
	if secs := int(c.ResendCooldown / time.Second); secs > 0 {
		fc.Flow.ResendCooldown = secs
	}
	return fc
}
