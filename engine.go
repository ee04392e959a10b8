package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authkit/internal/audit"
	"github.com/MrEthical07/authkit/password"
	"github.com/MrEthical07/authkit/secret"
	"github.com/MrEthical07/authkit/session"
	"github.com/MrEthical07/authkit/throttle"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Engine orchestrates registration, login, secrets and sessions. It holds
// no per-client state and is safe for concurrent use.
type Engine struct {
	config      Config
	accounts    AccountStore
	pool        *password.Pool
	dummyDigest string
	codec       *secret.Codec
	throttler   *throttle.Throttler
	sessions    *session.Manager
	validate    *validator.Validate
	clock       clockwork.Clock
	log         zerolog.Logger
	audit       *audit.Dispatcher
	metrics     *Metrics

	// redis is set only when Build dialed the client itself.
	redis redis.UniversalClient
}

// Close flushes the audit dispatcher and closes a Redis client the engine
// opened itself.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.audit.Close()
	if e.redis != nil {
		return e.redis.Close()
	}
	return nil
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.accounts == nil || e.throttler == nil || e.sessions == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
THROTTLING
====================================
*/

type charge struct {
	subject throttle.Subject
	cost    int
}

// admit peeks every subject before any expensive work. A denial reports the
// longest wait among the denying subjects and never which one denied.
func (e *Engine) admit(ctx context.Context, scope string, subjects ...throttle.Subject) error {
	var (
		denied bool
		wait   time.Duration
	)
	for _, subject := range subjects {
		d, err := e.throttler.Check(ctx, subject)
		if err != nil {
			return e.internal(ctx, "throttle check", err)
		}
		if !d.Allowed {
			denied = true
			if d.RetryAfter > wait {
				wait = d.RetryAfter
			}
		}
	}
	if denied {
		return e.rateLimited(ctx, scope, wait)
	}
	return nil
}

// spend charges every subject up front and denies if any bucket is now over
// its threshold. Used where each attempt costs the same regardless of
// outcome.
func (e *Engine) spend(ctx context.Context, scope string, charges ...charge) error {
	var (
		denied bool
		wait   time.Duration
	)
	for _, c := range charges {
		d, err := e.throttler.Attempt(ctx, c.subject, c.cost)
		if err != nil {
			return e.internal(ctx, "throttle attempt", err)
		}
		if !d.Allowed {
			denied = true
			if d.RetryAfter > wait {
				wait = d.RetryAfter
			}
		}
	}
	if denied {
		return e.rateLimited(ctx, scope, wait)
	}
	return nil
}

// record charges subjects after the outcome is known. A bucket that
// overflows here only affects the next admit.
func (e *Engine) record(ctx context.Context, charges ...charge) error {
	for _, c := range charges {
		if c.cost == 0 {
			continue
		}
		if _, err := e.throttler.Attempt(ctx, c.subject, c.cost); err != nil {
			return e.internal(ctx, "throttle record", err)
		}
	}
	return nil
}

func (e *Engine) rateLimited(ctx context.Context, scope string, wait time.Duration) error {
	if wait <= 0 {
		wait = time.Second
	}
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrTooManyRequests, func() map[string]string {
		return map[string]string{"scope": scope}
	})
	e.log.Debug().Str("scope", scope).Dur("retry_after", wait).Msg("request throttled")
	return &RateLimitError{RetryAfter: wait}
}

func (e *Engine) addressSubject(ctx context.Context, action string) throttle.Subject {
	return throttle.Address(clientIPFromContext(ctx)).For(action)
}

func (e *Engine) addressRule() ThrottleRule  { return e.config.Throttle.Address }
func (e *Engine) accountRule() ThrottleRule  { return e.config.Throttle.Account }
func (e *Engine) selectorRule() ThrottleRule { return e.config.Throttle.Selector }

/*
====================================
ERRORS
====================================
*/

// internal maps collaborator failures onto the fatal class and logs them.
// Context cancellation passes through unchanged.
func (e *Engine) internal(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if isCanceled(err) {
		return err
	}

	var mapped error
	switch {
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrCryptoUnavailable):
		mapped = err
	case errors.Is(err, secret.ErrEntropy), errors.Is(err, session.ErrEntropy), errors.Is(err, password.ErrEntropy):
		mapped = fmt.Errorf("%w: %s: %v", ErrCryptoUnavailable, op, err)
	default:
		mapped = fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}

	e.log.Error().Err(err).Str("op", op).Msg("collaborator failure")
	return mapped
}

// secretError maps codec outcomes onto the public errors.
func (e *Engine) secretError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, secret.ErrNotFound), errors.Is(err, secret.ErrInvalid):
		return ErrInvalidSelectorTokenPair
	case errors.Is(err, secret.ErrExpired):
		return ErrTokenExpired
	default:
		return e.internal(ctx, "secret verify", err)
	}
}

/*
====================================
POLICY
====================================
*/

// normalizeEmail trims and lower-cases, then validates the syntax.
func (e *Engine) normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := e.validate.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// checkPassword applies the length policy to the raw bytes. Nothing is
// trimmed, normalized or truncated.
func (e *Engine) checkPassword(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return ErrInvalidPassword
	}
	if max := e.config.Password.MaxLength; max > 0 && len(pw) > max {
		return ErrInvalidPassword
	}
	return nil
}
