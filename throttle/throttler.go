package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrStoreUnavailable wraps backend failures.
var ErrStoreUnavailable = errors.New("throttle store unavailable")

// Decision is the outcome of a check or attempt. RetryAfter is set only
// when Allowed is false.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

var admit = Decision{Allowed: true}

// Bucket is the stored state of one subject.
type Bucket struct {
	Count     int
	Start     time.Time
	LockUntil time.Time
	Strikes   int
}

// Store persists buckets.
//
// Apply must perform the whole read-reset-increment-decide step atomically.
// Peek must not mutate.
type Store interface {
	Apply(ctx context.Context, key string, cost int, now time.Time, limit Limit) (Decision, error)
	Peek(ctx context.Context, key string) (Bucket, bool, error)
	Delete(ctx context.Context, key string) error
}

// Throttler decides admission per subject.
type Throttler struct {
	store  Store
	clock  clockwork.Clock
	limits map[Kind]Limit
}

// New validates limits and returns a throttler. Every kind must have a
// limit.
func New(store Store, clock clockwork.Clock, limits map[Kind]Limit) (*Throttler, error) {
	if store == nil {
		return nil, errors.New("throttle: store required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	copied := make(map[Kind]Limit, len(limits))
	for _, kind := range []Kind{KindAddress, KindAccount, KindSelector} {
		limit, ok := limits[kind]
		if !ok {
			return nil, fmt.Errorf("%w: missing limit for %s", ErrInvalidLimit, kind)
		}
		if err := limit.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		copied[kind] = limit
	}

	return &Throttler{store: store, clock: clock, limits: copied}, nil
}

// Check reports whether one more attempt would currently be admitted. It
// never changes the bucket, so it is safe to call before any expensive work.
func (t *Throttler) Check(ctx context.Context, subject Subject) (Decision, error) {
	if subject.IsZero() {
		return admit, nil
	}
	limit, err := t.limitFor(subject)
	if err != nil {
		return Decision{}, err
	}

	bucket, ok, err := t.store.Peek(ctx, subject.Key())
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return admit, nil
	}

	return evaluate(bucket, t.clock.Now(), limit), nil
}

// Attempt charges cost to the subject and reports whether the bucket is
// still within its threshold afterwards. Rollover to a new window happens
// atomically before the charge.
func (t *Throttler) Attempt(ctx context.Context, subject Subject, cost int) (Decision, error) {
	if subject.IsZero() {
		return admit, nil
	}
	if cost < 0 {
		return Decision{}, errors.New("throttle: cost must be >= 0")
	}
	limit, err := t.limitFor(subject)
	if err != nil {
		return Decision{}, err
	}

	return t.store.Apply(ctx, subject.Key(), cost, t.clock.Now(), limit)
}

// Reset clears the subject's bucket.
func (t *Throttler) Reset(ctx context.Context, subject Subject) error {
	if subject.IsZero() {
		return nil
	}
	return t.store.Delete(ctx, subject.Key())
}

// Limit returns the configured limit for kind.
func (t *Throttler) Limit(kind Kind) Limit {
	return t.limits[kind]
}

func (t *Throttler) limitFor(subject Subject) (Limit, error) {
	limit, ok := t.limits[subject.Kind]
	if !ok {
		return Limit{}, fmt.Errorf("%w: unknown subject kind %s", ErrInvalidLimit, subject.Kind)
	}
	return limit, nil
}

// evaluate mirrors the admission rule of the store's apply step without
// charging anything.
func evaluate(b Bucket, now time.Time, limit Limit) Decision {
	if now.Before(b.LockUntil) {
		return Decision{Count: b.Count, RetryAfter: b.LockUntil.Sub(now)}
	}
	windowEnd := b.Start.Add(limit.Window)
	if !now.Before(windowEnd) {
		return admit
	}
	if b.Count >= limit.Threshold {
		return Decision{Count: b.Count, RetryAfter: windowEnd.Sub(now)}
	}
	return Decision{Allowed: true, Count: b.Count}
}
