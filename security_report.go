package authkit

import (
	"time"

	"github.com/MrEthical07/authkit/session"
)

// SecurityReport summarizes the effective security posture of an engine.
type SecurityReport struct {
	Argon2                PasswordConfigReport
	MinPasswordLength     int
	FingerprintPolicy     string
	VerificationRequired  bool
	UniqueUsernames       bool
	SessionTTL            time.Duration
	RememberMeTTL         time.Duration
	PasswordResetTTL      time.Duration
	LoginAttemptsPerEmail int
	LoginWindow           time.Duration
	SelectorLockout       bool
	AuditEnabled          bool
	LintCodes             []string
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	policy := session.PolicyFlag
	if e.sessions != nil {
		policy = e.sessions.Policy()
	}

	return SecurityReport{
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MinPasswordLength:     e.config.Password.MinLength,
		FingerprintPolicy:     policy.String(),
		VerificationRequired:  e.config.Verification.Required,
		UniqueUsernames:       e.config.Account.RequireUniqueUsername,
		SessionTTL:            e.config.Session.TTL,
		RememberMeTTL:         e.config.RememberMe.TTL,
		PasswordResetTTL:      e.config.PasswordReset.TTL,
		LoginAttemptsPerEmail: e.config.Throttle.Account.Threshold,
		LoginWindow:           e.config.Throttle.Account.Window,
		SelectorLockout:       e.config.Throttle.Selector.LockoutBase > 0,
		AuditEnabled:          e.config.Audit.Enabled,
		LintCodes:             e.config.Lint().Codes(),
	}
}
