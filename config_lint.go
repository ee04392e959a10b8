package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is one finding about a configuration that validates but is
// weaker than it should be.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of findings from Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, len(r))
	for i, w := range r {
		codes[i] = w.Code
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError returns an error listing every warning at or above min, or nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, len(hits))
	for i, w := range hits {
		parts[i] = fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
	}
	return errors.New("config lint: " + strings.Join(parts, "; "))
}

// Lint reports settings that pass Validate but weaken the deployment. It
// never fails; callers decide which severity to treat as fatal.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.Password.MinLength < 8 {
		add("password_min_short", LintHigh, "password.min_length %d is below 8", c.Password.MinLength)
	}
	if c.Password.MaxLength == 0 {
		add("password_max_unbounded", LintWarn, "password.max_length 0 lets clients submit arbitrarily large passwords")
	}
	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "password.memory %d KiB is below 64 MiB", c.Password.Memory)
	}

	if c.Throttle.Address.FailureCost <= c.Throttle.Address.SuccessCost ||
		c.Throttle.Account.FailureCost <= c.Throttle.Account.SuccessCost {
		add("failure_cost_not_higher", LintWarn, "failed attempts should cost more than successful ones")
	}
	if c.Throttle.Account.FailureCost == 0 {
		add("account_throttle_disabled", LintHigh, "throttle.account.failure_cost 0 never throttles password guessing")
	}
	if c.Throttle.Selector.LockoutBase == 0 {
		add("selector_lockout_disabled", LintWarn, "throttle.selector has no lockout; secrets can be guessed every window")
	}

	if !c.Verification.Required {
		add("verification_optional", LintInfo, "unverified accounts can log in")
	}
	if c.RememberMe.TTL > 90*24*time.Hour {
		add("remember_ttl_long", LintWarn, "remember_me.ttl %s exceeds 90 days", c.RememberMe.TTL)
	}
	if c.PasswordReset.TTL > 24*time.Hour {
		add("reset_ttl_long", LintWarn, "password_reset.ttl %s exceeds 24 hours", c.PasswordReset.TTL)
	}
	if c.Session.TTL > 7*24*time.Hour {
		add("session_ttl_long", LintWarn, "session.ttl %s exceeds 7 days", c.Session.TTL)
	}
	if strings.EqualFold(strings.TrimSpace(c.Session.FingerprintPolicy), "ignore") {
		add("fingerprint_ignored", LintInfo, "session fingerprint drift is never reported")
	}

	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "security events are not audited")
	}

	return ws
}
