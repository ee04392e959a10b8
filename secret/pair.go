package secret

import (
	"encoding/base64"
	"strings"
	"time"
)

const (
	selectorBytes = 16
	tokenBytes    = 32
	pairSeparator = ":"
)

// Purpose scopes a secret to one flow. A secret issued for one purpose never
// verifies for another.
type Purpose uint8

const (
	// EmailVerification secrets confirm ownership of an address.
	EmailVerification Purpose = iota + 1
	// RememberMe secrets re-establish a session without a password.
	RememberMe
	// PasswordReset secrets authorize setting a new password.
	PasswordReset
)

// String returns the storage name of the purpose.
func (p Purpose) String() string {
	switch p {
	case EmailVerification:
		return "email_verification"
	case RememberMe:
		return "remember_me"
	case PasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p >= EmailVerification && p <= PasswordReset
}

func parsePurpose(s string) Purpose {
	switch s {
	case "email_verification":
		return EmailVerification
	case "remember_me":
		return RememberMe
	case "password_reset":
		return PasswordReset
	default:
		return 0
	}
}

// Pair is an issued selector/token value. It can only be obtained from
// [Codec.Issue] or [Parse], and is deliberately not comparable.
type Pair struct {
	_         [0]func()
	selector  string
	token     string
	expiresAt time.Time
}

// Selector returns the non-secret lookup half.
func (p Pair) Selector() string { return p.selector }

// Token returns the raw secret half. Hand it to the delivery channel only.
func (p Pair) Token() string { return p.token }

// ExpiresAt is set on pairs returned by Issue and zero on parsed pairs.
func (p Pair) ExpiresAt() time.Time { return p.expiresAt }

// IsZero reports whether p carries no secret.
func (p Pair) IsZero() bool { return p.selector == "" && p.token == "" }

// Encode joins both halves as "selector:token", the form placed in links
// and cookies.
func (p Pair) Encode() string {
	if p.IsZero() {
		return ""
	}
	return p.selector + pairSeparator + p.token
}

// String redacts the token so a Pair is safe to log.
func (p Pair) String() string {
	if p.IsZero() {
		return "secret.Pair{}"
	}
	return "secret.Pair{selector:" + p.selector + " token:<redacted>}"
}

// Parse reads the Encode form back into a Pair. It checks shape only; use
// [Codec.Verify] to check the secret itself.
func Parse(encoded string) (Pair, error) {
	selector, token, ok := strings.Cut(encoded, pairSeparator)
	if !ok || !wellFormed(selector, selectorBytes) || !wellFormed(token, tokenBytes) {
		return Pair{}, ErrInvalid
	}
	return Pair{selector: selector, token: token}, nil
}

func wellFormed(s string, size int) bool {
	if len(s) != base64.RawURLEncoding.EncodedLen(size) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}
