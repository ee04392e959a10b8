package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Recoverable errors. Callers are expected to handle these in normal
// operation.
var (
	// ErrInvalidEmail is returned for a malformed address, and by Login when
	// no account has the address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidPassword is returned for a wrong password or one that fails
	// the password policy.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUserAlreadyExists is returned by Register for a taken email.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrDuplicateUsername is returned by Register for a taken username when
	// usernames must be unique.
	ErrDuplicateUsername = errors.New("username already taken")
	// ErrUnknownUsername is returned by LoginWithUsername when no account has
	// the username.
	ErrUnknownUsername = errors.New("unknown username")
	// ErrAmbiguousUsername is returned when a username maps to several
	// accounts.
	ErrAmbiguousUsername = errors.New("ambiguous username")
	// ErrUsernameLoginDisabled is returned by LoginWithUsername when
	// usernames are not unique.
	ErrUsernameLoginDisabled = errors.New("username login disabled")
	// ErrEmailNotVerified is returned by Login while verification is pending.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrInvalidSelectorTokenPair is returned when a secret is unknown,
	// already used or does not match.
	ErrInvalidSelectorTokenPair = errors.New("invalid selector/token pair")
	// ErrTokenExpired is returned when a secret is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTooManyRequests is matched by every *RateLimitError.
	ErrTooManyRequests = errors.New("too many requests")
	// ErrNotLoggedIn is returned when an operation needs a live session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Fatal errors. These indicate misconfiguration or collaborator failure and
// should propagate to the process boundary.
var (
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrCryptoUnavailable = errors.New("crypto primitive unavailable")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEngineNotReady    = errors.New("engine not ready")
	ErrDeliveryFailed    = errors.New("message delivery failed")
)

// Errors an AccountStore returns so the engine can tell conflicts from
// outages.
var (
	ErrProviderDuplicateEmail    = errors.New("provider: duplicate email")
	ErrProviderDuplicateUsername = errors.New("provider: duplicate username")
	ErrProviderNotFound          = errors.New("provider: account not found")
	ErrProviderAmbiguous         = errors.New("provider: ambiguous lookup")
)

// RateLimitError reports a throttling denial. It deliberately does not say
// which limit was hit.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrTooManyRequests) hold.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyRequests
}

// RetryAfter returns the wait carried by a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// IsFatal reports whether err belongs to the fatal class.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrCryptoUnavailable) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrEngineNotReady) ||
		errors.Is(err, ErrDeliveryFailed)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
