package authkit

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix is used by LoadConfig when envPrefix is empty.
const DefaultEnvPrefix = "AUTHKIT"

// LoadConfig reads configuration from an optional file and the environment
// on top of DefaultConfig, then validates it.
//
// path may name a YAML, JSON or TOML file, or be empty. Environment
// variables override the file; the key password.min_length is read from
// AUTHKIT_PASSWORD_MIN_LENGTH. Durations accept strings such as "15m".
func LoadConfig(path, envPrefix string) (Config, error) {
	if envPrefix == "" {
		envPrefix = DefaultEnvPrefix
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it even when
// the file omits it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("password.memory", d.Password.Memory)
	v.SetDefault("password.time", d.Password.Time)
	v.SetDefault("password.parallelism", d.Password.Parallelism)
	v.SetDefault("password.salt_length", d.Password.SaltLength)
	v.SetDefault("password.key_length", d.Password.KeyLength)
	v.SetDefault("password.min_length", d.Password.MinLength)
	v.SetDefault("password.max_length", d.Password.MaxLength)
	v.SetDefault("password.max_concurrent", d.Password.MaxConcurrent)

	for name, rule := range map[string]ThrottleRule{
		"address":  d.Throttle.Address,
		"account":  d.Throttle.Account,
		"selector": d.Throttle.Selector,
	} {
		key := "throttle." + name + "."
		v.SetDefault(key+"threshold", rule.Threshold)
		v.SetDefault(key+"window", rule.Window)
		v.SetDefault(key+"lockout_base", rule.LockoutBase)
		v.SetDefault(key+"lockout_max", rule.LockoutMax)
		v.SetDefault(key+"success_cost", rule.SuccessCost)
		v.SetDefault(key+"failure_cost", rule.FailureCost)
	}

	v.SetDefault("verification.required", d.Verification.Required)
	v.SetDefault("verification.ttl", d.Verification.TTL)
	v.SetDefault("remember_me.ttl", d.RememberMe.TTL)
	v.SetDefault("password_reset.ttl", d.PasswordReset.TTL)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("session.fingerprint_policy", d.Session.FingerprintPolicy)
	v.SetDefault("account.require_unique_username", d.Account.RequireUniqueUsername)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.buffer_size", d.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", d.Audit.DropIfFull)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", d.Metrics.EnableLatencyHistograms)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
}
