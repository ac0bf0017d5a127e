package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV", "LOG_LEVEL", "HTTP_ADDR", "AUTH_BACKEND", "SUPABASE_URL", "SUPABASE_ANON_KEY",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "SMS_LOCAL_API_KEY", "SMS_LOCAL_BASE_URL",
	"SMS_LOCAL_SENDER", "OTP_RETURN_TO_CLIENT", "GRANT_SIGNING_KEY", "GRANT_ISSUER", "GRANT_TTL",
	"OTP_TTL", "OTP_MAX_ATTEMPTS", "SEND_MAX_PER_WINDOW", "SEND_WINDOW", "RESEND_COOLDOWN",
	"COUNTRY_CODE", "PREFS_PATH", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv blanks every key for the test. Viper treats empty env values as
// unset, so defaults apply.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_RETURN_TO_CLIENT", "true")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.AuthBackend != BackendLocal || cfg.CountryCode != "+91" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.OTPTTL != 5*time.Minute || cfg.ResendCooldown != time.Minute || cfg.GrantTTL != time.Hour {
		t.Errorf("unexpected duration defaults: ttl=%v cooldown=%v grant=%v", cfg.OTPTTL, cfg.ResendCooldown, cfg.GrantTTL)
	}
	if cfg.OTPMaxAttempts != 5 || cfg.SendMaxPerWindow != 5 {
		t.Errorf("unexpected limits: %+v", cfg)
	}

	flow := cfg.Flow()
	if flow.Flow.CountryCode != "+91" || flow.Flow.ResendCooldown != 60 {
		t.Errorf("unexpected flow config: %+v", flow.Flow)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTP_RETURN_TO_CLIENT", "true")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("RESEND_COOLDOWN", "30s")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("COUNTRY_CODE", "+1")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.ResendCooldown != 30*time.Second || cfg.OTPMaxAttempts != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Flow().Flow.ResendCooldown != 30 || cfg.Flow().Flow.CountryCode != "+1" {
		t.Errorf("unexpected flow config: %+v", cfg.Flow().Flow)
	}
	lc, err := cfg.LocalBackend()
	if err != nil || lc.MaxAttempts != 3 || lc.ResendCooldown != 30*time.Second {
		t.Errorf("unexpected local config %+v / %v", lc, err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "AUTH_BACKEND=supabase\nSUPABASE_URL=https://abc.supabase.co\nSUPABASE_ANON_KEY=anon\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AuthBackend != BackendSupabase || cfg.SupabaseURL != "https://abc.supabase.co" {
		t.Errorf("env file not applied: %+v", cfg)
	}

	t.Setenv("SUPABASE_ANON_KEY", "from-env")
	cfg, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.SupabaseAnonKey != "from-env" {
		t.Errorf("env must override file, got %q", cfg.SupabaseAnonKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"dev otp in production", map[string]string{"APP_ENV": "production", "OTP_RETURN_TO_CLIENT": "true"}},
		{"local without sms key", map[string]string{}},
		{"production without signing key", map[string]string{"APP_ENV": "production", "SMS_LOCAL_API_KEY": "k"}},
		{"supabase without url", map[string]string{"AUTH_BACKEND": "supabase"}},
		{"unknown backend", map[string]string{"AUTH_BACKEND": "firebase", "OTP_RETURN_TO_CLIENT": "true"}},
		{"bad country code", map[string]string{"COUNTRY_CODE": "91", "OTP_RETURN_TO_CLIENT": "true"}},
		{"zero attempts", map[string]string{"OTP_MAX_ATTEMPTS": "0", "OTP_RETURN_TO_CLIENT": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFile(""); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestProductionLocalBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("SMS_LOCAL_API_KEY", "k")
	t.Setenv("GRANT_SIGNING_KEY", "secret")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
}
