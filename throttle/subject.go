package throttle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind separates bucket families. Buckets of different kinds never share a
// key, so an address limit can never be spent by account attempts.
type Kind uint8

const (
	// KindAddress buckets are keyed by originating address.
	KindAddress Kind = iota + 1
	// KindAccount buckets are keyed by account identifier.
	KindAccount
	// KindSelector buckets are keyed by secret selector.
	KindSelector
)

func (k Kind) String() string {
	switch k {
	case KindAddress:
		return "ip"
	case KindAccount:
		return "account"
	case KindSelector:
		return "selector"
	default:
		return "unknown"
	}
}

// Subject names one bucket.
type Subject struct {
	Kind   Kind
	Action string
	ID     string
}

// Address returns the subject for an originating address.
func Address(addr string) Subject { return Subject{Kind: KindAddress, ID: addr} }

// Account returns the subject for an account identifier.
func Account(id string) Subject { return Subject{Kind: KindAccount, ID: id} }

// Selector returns the subject for a secret selector.
func Selector(selector string) Subject { return Subject{Kind: KindSelector, ID: selector} }

// For scopes the subject to an action so, for example, registration
// attempts from an address do not spend its login budget.
func (s Subject) For(action string) Subject {
	s.Action = action
	return s
}

// IsZero reports whether the subject has no identifier. Zero subjects are
// always admitted and never stored.
func (s Subject) IsZero() bool { return s.ID == "" }

// Key returns "kind:id" or "kind:action:id".
func (s Subject) Key() string {
	var b strings.Builder
	b.Grow(len(s.Action) + len(s.ID) + 12)
	b.WriteString(s.Kind.String())
	b.WriteByte(':')
	if s.Action != "" {
		b.WriteString(s.Action)
		b.WriteByte(':')
	}
	b.WriteString(s.ID)
	return b.String()
}

// ErrInvalidLimit is returned for a limit that cannot throttle anything.
var ErrInvalidLimit = errors.New("invalid throttle limit")

// Limit configures one subject kind.
//
// Threshold is the total cost admitted per Window. When LockoutBase is set,
// every denial also locks the bucket for LockoutBase doubled per
// consecutive denied window, capped at LockoutMax.
type Limit struct {
	Threshold   int           `mapstructure:"threshold"`
	Window      time.Duration `mapstructure:"window"`
	LockoutBase time.Duration `mapstructure:"lockout_base"`
	LockoutMax  time.Duration `mapstructure:"lockout_max"`
}

// Validate rejects non-positive thresholds and windows.
func (l Limit) Validate() error {
	if l.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be > 0", ErrInvalidLimit)
	}
	if l.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0", ErrInvalidLimit)
	}
	if l.LockoutBase < 0 || l.LockoutMax < 0 {
		return fmt.Errorf("%w: lockout durations must be >= 0", ErrInvalidLimit)
	}
	if l.LockoutBase > 0 && l.LockoutMax < l.LockoutBase {
		return fmt.Errorf("%w: lockout max must be >= lockout base", ErrInvalidLimit)
	}
	return nil
}
