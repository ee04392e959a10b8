package authkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantValid: true},
		{name: "argon2 memory below floor", mutate: func(c *Config) { c.Password.Memory = 4 * 1024 }},
		{name: "argon2 time zero", mutate: func(c *Config) { c.Password.Time = 0 }},
		{name: "argon2 parallelism zero", mutate: func(c *Config) { c.Password.Parallelism = 0 }},
		{name: "salt too short", mutate: func(c *Config) { c.Password.SaltLength = 8 }},
		{name: "key too short", mutate: func(c *Config) { c.Password.KeyLength = 8 }},
		{name: "min length zero", mutate: func(c *Config) { c.Password.MinLength = 0 }},
		{name: "max below min", mutate: func(c *Config) { c.Password.MaxLength = 5 }},
		{name: "max unbounded", mutate: func(c *Config) { c.Password.MaxLength = 0 }, wantValid: true},
		{name: "negative pool", mutate: func(c *Config) { c.Password.MaxConcurrent = -1 }},
		{name: "throttle threshold zero", mutate: func(c *Config) { c.Throttle.Account.Threshold = 0 }},
		{name: "throttle window zero", mutate: func(c *Config) { c.Throttle.Address.Window = 0 }},
		{name: "throttle negative cost", mutate: func(c *Config) { c.Throttle.Selector.FailureCost = -1 }},
		{name: "lockout max below base", mutate: func(c *Config) { c.Throttle.Selector.LockoutMax = time.Minute }},
		{name: "verification ttl zero", mutate: func(c *Config) { c.Verification.TTL = 0 }},
		{name: "remember ttl zero", mutate: func(c *Config) { c.RememberMe.TTL = 0 }},
		{name: "reset ttl zero", mutate: func(c *Config) { c.PasswordReset.TTL = 0 }},
		{name: "session ttl zero", mutate: func(c *Config) { c.Session.TTL = 0 }},
		{name: "fingerprint strict", mutate: func(c *Config) { c.Session.FingerprintPolicy = "strict" }, wantValid: true},
		{name: "fingerprint unknown", mutate: func(c *Config) { c.Session.FingerprintPolicy = "paranoid" }},
		{name: "audit without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
		{name: "empty redis prefix", mutate: func(c *Config) { c.Redis.Prefix = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authkit.yaml")
	yaml := []byte(`
password:
  min_length: 12
throttle:
  account:
    threshold: 3
    window: 5m
session:
  ttl: 2h
  fingerprint_policy: strict
redis:
  addr: localhost:6379
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AUTHKIT_SESSION_TTL", "45m")
	t.Setenv("AUTHKIT_VERIFICATION_REQUIRED", "false")

	cfg, err := LoadConfig(path, "")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Password.MinLength != 12 {
		t.Fatalf("expected min_length 12 from file, got %d", cfg.Password.MinLength)
	}
	if cfg.Throttle.Account.Threshold != 3 || cfg.Throttle.Account.Window != 5*time.Minute {
		t.Fatalf("unexpected account rule %+v", cfg.Throttle.Account)
	}
	if cfg.Throttle.Account.FailureCost != 1 {
		t.Fatalf("expected default failure cost kept, got %d", cfg.Throttle.Account.FailureCost)
	}
	if cfg.Session.TTL != 45*time.Minute {
		t.Fatalf("expected env to override session ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Session.FingerprintPolicy != "strict" {
		t.Fatalf("unexpected policy %q", cfg.Session.FingerprintPolicy)
	}
	if cfg.Verification.Required {
		t.Fatal("expected env to disable verification")
	}
	if cfg.Password.Memory != DefaultConfig().Password.Memory {
		t.Fatal("expected unset keys to keep defaults")
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
}

func TestLoadConfigCustomPrefixWithoutFile(t *testing.T) {
	t.Setenv("MYAPP_PASSWORD_MIN_LENGTH", "16")

	cfg, err := LoadConfig("", "MYAPP")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Password.MinLength != 16 {
		t.Fatalf("expected 16, got %d", cfg.Password.MinLength)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("AUTHKIT_SESSION_FINGERPRINT_POLICY", "paranoid")

	if _, err := LoadConfig("", ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing file, got %v", err)
	}
}
