package authkit

import (
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/session"
	"github.com/MrEthical07/authkit/throttle"
)

// Config is the complete engine configuration. Start from DefaultConfig or
// LoadConfig.
type Config struct {
	Password      PasswordConfig      `mapstructure:"password"`
	Throttle      ThrottleConfig      `mapstructure:"throttle"`
	Verification  VerificationConfig  `mapstructure:"verification"`
	RememberMe    RememberMeConfig    `mapstructure:"remember_me"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	Session       SessionConfig       `mapstructure:"session"`
	Account       AccountConfig       `mapstructure:"account"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters and the password policy.
// Memory is in KiB. MaxLength 0 means no upper bound.
type PasswordConfig struct {
	Memory        uint32 `mapstructure:"memory"`
	Time          uint32 `mapstructure:"time"`
	Parallelism   uint8  `mapstructure:"parallelism"`
	SaltLength    uint32 `mapstructure:"salt_length"`
	KeyLength     uint32 `mapstructure:"key_length"`
	MinLength     int    `mapstructure:"min_length"`
	MaxLength     int    `mapstructure:"max_length"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

func (c PasswordConfig) hasher() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	}
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleRule is a bucket limit plus what one attempt costs. Failed
// attempts should cost more than successful ones.
type ThrottleRule struct {
	throttle.Limit `mapstructure:",squash"`
	SuccessCost    int `mapstructure:"success_cost"`
	FailureCost    int `mapstructure:"failure_cost"`
}

// ThrottleConfig has one rule per subject kind.
type ThrottleConfig struct {
	Address  ThrottleRule `mapstructure:"address"`
	Account  ThrottleRule `mapstructure:"account"`
	Selector ThrottleRule `mapstructure:"selector"`
}

func (c ThrottleConfig) limits() map[throttle.Kind]throttle.Limit {
	return map[throttle.Kind]throttle.Limit{
		throttle.KindAddress:  c.Address.Limit,
		throttle.KindAccount:  c.Account.Limit,
		throttle.KindSelector: c.Selector.Limit,
	}
}

/*
====================================
SECRET CONFIG
====================================
*/

// VerificationConfig controls email verification. With Required set, Login
// refuses unverified accounts.
type VerificationConfig struct {
	Required bool          `mapstructure:"required"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RememberMeConfig sets the lifetime of remember-me secrets and of the
// sessions they establish.
type RememberMeConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// PasswordResetConfig sets the lifetime of password reset secrets.
type PasswordResetConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls fresh sessions. FingerprintPolicy is one of
// "ignore", "flag" or "strict".
type SessionConfig struct {
	TTL               time.Duration `mapstructure:"ttl"`
	FingerprintPolicy string        `mapstructure:"fingerprint_policy"`
}

// AccountConfig controls the username policy.
type AccountConfig struct {
	RequireUniqueUsername bool `mapstructure:"require_unique_username"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// RedisConfig is used by Build when no client was supplied. Prefix
// namespaces every key the engine writes.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
			MaxLength:   4096,
		},
		Throttle: ThrottleConfig{
			Address: ThrottleRule{
				Limit:       throttle.Limit{Threshold: 50, Window: 15 * time.Minute},
				SuccessCost: 1,
				FailureCost: 2,
			},
			Account: ThrottleRule{
				Limit:       throttle.Limit{Threshold: 10, Window: 15 * time.Minute},
				SuccessCost: 0,
				FailureCost: 1,
			},
			Selector: ThrottleRule{
				Limit: throttle.Limit{
					Threshold:   5,
					Window:      15 * time.Minute,
					LockoutBase: 15 * time.Minute,
					LockoutMax:  24 * time.Hour,
				},
				SuccessCost: 1,
				FailureCost: 1,
			},
		},
		Verification: VerificationConfig{
			Required: true,
			TTL:      24 * time.Hour,
		},
		RememberMe: RememberMeConfig{
			TTL: 30 * 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TTL: time.Hour,
		},
		Session: SessionConfig{
			TTL:               12 * time.Hour,
			FingerprintPolicy: "flag",
		},
		Account: AccountConfig{
			RequireUniqueUsername: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			Prefix: "authkit",
		},
	}
}

// Validate checks the configuration. Every failure wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Password.Memory < 8*1024 {
		return invalidConfig("password.memory must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return invalidConfig("password.time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return invalidConfig("password.parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return invalidConfig("password.salt_length must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return invalidConfig("password.key_length must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return invalidConfig("password.min_length must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return invalidConfig("password.max_length must be 0 or >= min_length")
	}
	if c.Password.MaxConcurrent < 0 {
		return invalidConfig("password.max_concurrent must be >= 0")
	}

	for name, rule := range map[string]ThrottleRule{
		"address":  c.Throttle.Address,
		"account":  c.Throttle.Account,
		"selector": c.Throttle.Selector,
	} {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%w: throttle.%s: %v", ErrInvalidConfig, name, err)
		}
		if rule.SuccessCost < 0 || rule.FailureCost < 0 {
			return fmt.Errorf("%w: throttle.%s costs must be >= 0", ErrInvalidConfig, name)
		}
	}

	if c.Verification.TTL <= 0 {
		return invalidConfig("verification.ttl must be > 0")
	}
	if c.RememberMe.TTL <= 0 {
		return invalidConfig("remember_me.ttl must be > 0")
	}
	if c.PasswordReset.TTL <= 0 {
		return invalidConfig("password_reset.ttl must be > 0")
	}
	if c.Session.TTL <= 0 {
		return invalidConfig("session.ttl must be > 0")
	}
	if _, err := session.ParsePolicy(c.Session.FingerprintPolicy); err != nil {
		return fmt.Errorf("%w: session.fingerprint_policy: %v", ErrInvalidConfig, err)
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("audit.buffer_size must be > 0 when audit is enabled")
	}
	if c.Redis.Prefix == "" {
		return invalidConfig("redis.prefix must not be empty")
	}

	return nil
}

func invalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
